package email

import (
	"strings"
)

// recipientHeaders is the recovery order when the envelope recipient is
// missing. Forwarding chains rewrite To but usually preserve the
// original delivery headers, so those are preferred.
var recipientHeaders = []string{
	"X-Original-To",
	"Delivered-To",
	"X-Forwarded-To",
	"To",
}

// RecoverRecipient picks the best recipient address from the webhook
// payload: the explicit envelope recipient first, then the delivery
// headers in priority order.
func RecoverRecipient(envelopeRecipient string, headers map[string]string) string {
	if addr := cleanAddress(envelopeRecipient); addr != "" {
		return addr
	}
	for _, name := range recipientHeaders {
		if v, ok := lookupHeader(headers, name); ok {
			if addr := cleanAddress(v); addr != "" {
				return addr
			}
		}
	}
	return ""
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	// Webhook senders disagree on header casing.
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// cleanAddress extracts a bare address from forms like
// "Name <user@host>" or a comma-separated list (first entry wins).
func cleanAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	if start := strings.IndexByte(raw, '<'); start >= 0 {
		if end := strings.IndexByte(raw[start:], '>'); end > 0 {
			raw = raw[start+1 : start+end]
		}
	}
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "@") {
		return ""
	}
	return strings.ToLower(raw)
}

// RoutingKeyFromAddress derives the organization routing key from the
// recipient address local part. A "tasks+" prefix is the conventional
// shared-inbox form (tasks+acme@ingest.example.com routes to "acme").
func RoutingKeyFromAddress(address string) string {
	addr := cleanAddress(address)
	if addr == "" {
		return ""
	}
	local := addr[:strings.IndexByte(addr, '@')]
	if rest, ok := strings.CutPrefix(local, "tasks+"); ok && rest != "" {
		return rest
	}
	return local
}
