package gmailpush

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	emailchan "taskpilot-backend/internal/channel/email"
	msgdomain "taskpilot-backend/internal/message/domain"
)

// mailboxClient is a slim Gmail API client for the single ingest inbox,
// authenticated with an offline refresh token.
type mailboxClient struct {
	srv     *gmail.Service
	address string
}

func newMailboxClient(ctx context.Context, clientID, clientSecret, refreshToken, address string) (*mailboxClient, error) {
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now(), // force an immediate refresh
	}
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
	}

	client := oauth2.NewClient(ctx, config.TokenSource(ctx, token))
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}
	return &mailboxClient{srv: srv, address: address}, nil
}

// addedMessageIDs lists message ids added to the inbox since the given
// history id.
func (c *mailboxClient) addedMessageIDs(startHistoryID uint64) ([]string, error) {
	resp, err := c.srv.Users.History.List("me").
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded").
		Do()
	if err != nil {
		return nil, err
	}

	var ids []string
	seen := make(map[string]bool)
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message != nil && !seen[added.Message.Id] {
				seen[added.Message.Id] = true
				ids = append(ids, added.Message.Id)
			}
		}
	}
	return ids, nil
}

// fetchMessage loads a full message and normalizes it.
func (c *mailboxClient) fetchMessage(id string) (*msgdomain.InboundMessage, error) {
	full, err := c.srv.Users.Messages.Get("me", id).Format("full").Do()
	if err != nil {
		return nil, err
	}
	if full.Payload == nil {
		return nil, fmt.Errorf("message %s has no payload", id)
	}

	headers := full.Payload.Headers
	recipient := emailchan.RecoverRecipient(c.address, map[string]string{
		"X-Original-To": getHeader(headers, "X-Original-To"),
		"Delivered-To":  getHeader(headers, "Delivered-To"),
		"To":            getHeader(headers, "To"),
	})

	receivedAt := time.UnixMilli(full.InternalDate)
	if full.InternalDate == 0 {
		receivedAt = time.Now()
	}

	messageID := getHeader(headers, "Message-Id")
	if messageID == "" {
		messageID = getHeader(headers, "Message-ID")
	}
	if messageID == "" {
		messageID = "gmail:" + full.Id
	}

	return &msgdomain.InboundMessage{
		Sender:     extractAddress(getHeader(headers, "From")),
		Recipient:  recipient,
		RoutingKey: emailchan.RoutingKeyFromAddress(recipient),
		Subject:    getHeader(headers, "Subject"),
		Body:       getBody(full.Payload),
		ReceivedAt: receivedAt,
		Channel:    msgdomain.ChannelEmail,
		MessageID:  messageID,
		InReplyTo:  getHeader(headers, "In-Reply-To"),
		References: strings.Fields(getHeader(headers, "References")),
		Metadata:   map[string]string{"gmail_id": full.Id},
	}, nil
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getBody prefers text/plain, falls back to text/html, walking nested
// multipart payloads.
func getBody(payload *gmail.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(data)
		}
	}

	var plainBody, htmlBody string
	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				data, err := base64.URLEncoding.DecodeString(part.Body.Data)
				if err == nil {
					switch part.MimeType {
					case "text/plain":
						plainBody = string(data)
					case "text/html":
						htmlBody = string(data)
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody
	}
	return htmlBody
}

func extractAddress(fromHeader string) string {
	if start := strings.IndexByte(fromHeader, '<'); start >= 0 {
		if end := strings.IndexByte(fromHeader[start:], '>'); end > 0 {
			return strings.ToLower(fromHeader[start+1 : start+end])
		}
	}
	return strings.ToLower(strings.TrimSpace(fromHeader))
}
