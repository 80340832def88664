package email

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	msgdomain "taskpilot-backend/internal/message/domain"
)

type captureProcessor struct {
	msg     *msgdomain.InboundMessage
	outcome msgdomain.Outcome
}

func (p *captureProcessor) Process(_ context.Context, msg *msgdomain.InboundMessage) (msgdomain.Outcome, error) {
	p.msg = msg
	return p.outcome, nil
}

func postWebhook(t *testing.T, h *Handler, payload any) (*httptest.ResponseRecorder, msgdomain.Outcome) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/webhooks/email", h.HandleInbound)

	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/email", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out msgdomain.Outcome
	json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHandleInboundNormalizesMessage(t *testing.T) {
	p := &captureProcessor{outcome: msgdomain.Created("t-1")}
	h := NewHandler(p, nil)

	w, out := postWebhook(t, h, WebhookRequest{
		MessageID:  "<abc@mail>",
		From:       "Jordan Pham <jordan@acme.com>",
		Recipient:  "tasks+acme@ingest.example.com",
		Subject:    "Renew certificates",
		BodyPlain:  "Certs expire next week.",
		InReplyTo:  "<root@mail>",
		References: "<root@mail> <mid@mail>",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if out.Kind != msgdomain.OutcomeCreated {
		t.Fatalf("outcome = %+v", out)
	}

	msg := p.msg
	if msg.Sender != "jordan@acme.com" {
		t.Errorf("sender not cleaned: %q", msg.Sender)
	}
	if msg.RoutingKey != "acme" {
		t.Errorf("routing key = %q, want acme", msg.RoutingKey)
	}
	if len(msg.References) != 2 || msg.References[0] != "<root@mail>" {
		t.Errorf("references not split: %v", msg.References)
	}
	if msg.Channel != msgdomain.ChannelEmail {
		t.Errorf("channel = %q", msg.Channel)
	}
}

func TestHandleInboundRecoversRecipientFromHeaders(t *testing.T) {
	p := &captureProcessor{outcome: msgdomain.Created("t-1")}
	h := NewHandler(p, nil)

	_, _ = postWebhook(t, h, WebhookRequest{
		MessageID: "<abc@mail>",
		From:      "a@x.com",
		Headers: map[string]string{
			"To":            "someone-else@other.com",
			"X-Original-To": "tasks+beta@ingest.example.com",
		},
	})

	if p.msg.Recipient != "tasks+beta@ingest.example.com" {
		t.Errorf("X-Original-To should win over To, got %q", p.msg.Recipient)
	}
	if p.msg.RoutingKey != "beta" {
		t.Errorf("routing key = %q", p.msg.RoutingKey)
	}
}

func TestHandleInboundNoRecipientRejects(t *testing.T) {
	p := &captureProcessor{}
	h := NewHandler(p, nil)

	w, out := postWebhook(t, h, WebhookRequest{
		MessageID: "<abc@mail>",
		From:      "a@x.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("rejections still return 200, got %d", w.Code)
	}
	if out.Kind != msgdomain.OutcomeRejected || out.Reason != "no_recipient" {
		t.Fatalf("expected no_recipient rejection, got %+v", out)
	}
	if p.msg != nil {
		t.Error("pipeline must not run without a recipient")
	}
}

func TestRecoverRecipientPriority(t *testing.T) {
	tests := []struct {
		name     string
		envelope string
		headers  map[string]string
		want     string
	}{
		{
			name:     "envelope wins",
			envelope: "env@x.com",
			headers:  map[string]string{"X-Original-To": "orig@x.com"},
			want:     "env@x.com",
		},
		{
			name:    "delivered-to before forwarded",
			headers: map[string]string{"Delivered-To": "del@x.com", "X-Forwarded-To": "fwd@x.com"},
			want:    "del@x.com",
		},
		{
			name:    "case-insensitive header names",
			headers: map[string]string{"x-original-to": "orig@x.com"},
			want:    "orig@x.com",
		},
		{
			name:    "to is last resort",
			headers: map[string]string{"To": "Team <team@x.com>, other@x.com"},
			want:    "team@x.com",
		},
		{
			name:    "nothing usable",
			headers: map[string]string{"To": "undisclosed-recipients"},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecoverRecipient(tt.envelope, tt.headers); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoutingKeyFromAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"tasks+acme@ingest.example.com", "acme"},
		{"acme@ingest.example.com", "acme"},
		{"Tasks+Beta@Ingest.example.com", "beta"},
		{"not-an-address", ""},
	}
	for _, tt := range tests {
		if got := RoutingKeyFromAddress(tt.in); got != tt.want {
			t.Errorf("RoutingKeyFromAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
