package mailer

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

// Mailer sends outbound notices (acknowledgements, quota warnings,
// reminder mails).
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// GatewayMailer delivers through an HTTP mail gateway with a
// Mailgun-style form API.
type GatewayMailer struct {
	baseURL string
	apiKey  string
	domain  string
	sender  string
	client  *http.Client
}

func NewGatewayMailer(baseURL, apiKey, domain, sender string) *GatewayMailer {
	return &GatewayMailer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		domain:  domain,
		sender:  sender,
		client:  &http.Client{},
	}
}

func (m *GatewayMailer) Send(ctx context.Context, to, subject, body string) error {
	endpoint := fmt.Sprintf("%s/v3/%s/messages", m.baseURL, m.domain)

	form := url.Values{}
	form.Set("from", m.sender)
	form.Set("to", to)
	form.Set("subject", subject)
	form.Set("text", body)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth("api", m.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mail gateway error (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// LogMailer writes mail to the log instead of sending it. Used in
// development and as the default when no gateway is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, body string) error {
	log.Printf("[Mailer] (dry-run) to=%s subject=%q body=%d bytes", to, subject, len(body))
	return nil
}
