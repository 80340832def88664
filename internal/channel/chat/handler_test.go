package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"taskpilot-backend/internal/dedup"
	msgdomain "taskpilot-backend/internal/message/domain"
	orgdomain "taskpilot-backend/internal/org/domain"
)

const botID = "bot-42"

type captureProcessor struct {
	msg     *msgdomain.InboundMessage
	outcome msgdomain.Outcome
}

func (p *captureProcessor) Process(_ context.Context, msg *msgdomain.InboundMessage) (msgdomain.Outcome, error) {
	p.msg = msg
	return p.outcome, nil
}

type stubDirectory struct {
	member *orgdomain.Member
	org    *orgdomain.Organization
}

func (d *stubDirectory) FindMemberByChatID(chatUserID string) (*orgdomain.Member, *orgdomain.Organization, error) {
	if d.member != nil && d.member.ChatUserID == chatUserID {
		return d.member, d.org, nil
	}
	return nil, nil, nil
}

func knownDirectory() *stubDirectory {
	return &stubDirectory{
		member: &orgdomain.Member{ID: "m-1", Email: "jordan@acme.com", ChatUserID: "user-7"},
		org:    &orgdomain.Organization{ID: "org-1", RoutingKey: "acme"},
	}
}

func postMention(t *testing.T, h *Handler, ev MentionEvent) map[string]any {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/webhooks/chat", h.HandleMention)

	body, _ := json.Marshal(ev)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func TestHandleMentionFilesTask(t *testing.T) {
	p := &captureProcessor{outcome: msgdomain.Created("t-1")}
	h := NewHandler(p, knownDirectory(), botID, nil)

	resp := postMention(t, h, MentionEvent{
		MessageID: "1001",
		ChannelID: "chan-1",
		AuthorID:  "user-7",
		Content:   "<@bot-42> deploy the staging build by friday",
		Mentions:  []string{botID},
	})

	if resp["reply"] != "Filed it as a task." {
		t.Errorf("reply = %v", resp["reply"])
	}
	if p.msg == nil {
		t.Fatal("pipeline not invoked")
	}
	if p.msg.Sender != "jordan@acme.com" || p.msg.RoutingKey != "acme" {
		t.Errorf("member not resolved: %+v", p.msg)
	}
	if p.msg.Body != "deploy the staging build by friday" {
		t.Errorf("mention token not stripped: %q", p.msg.Body)
	}
	if p.msg.MessageID != "chat:1001" {
		t.Errorf("message id = %q", p.msg.MessageID)
	}
	if p.msg.Channel != msgdomain.ChannelChat {
		t.Errorf("channel = %q", p.msg.Channel)
	}
}

func TestHandleMentionIgnoresBots(t *testing.T) {
	p := &captureProcessor{}
	h := NewHandler(p, knownDirectory(), botID, nil)

	resp := postMention(t, h, MentionEvent{
		MessageID:   "1002",
		AuthorID:    "other-bot",
		AuthorIsBot: true,
		Content:     "<@bot-42> hi",
		Mentions:    []string{botID},
	})
	if resp["ignored"] != "bot_author" {
		t.Errorf("expected bot_author ignore, got %v", resp)
	}
	if p.msg != nil {
		t.Error("pipeline must not run for bot authors")
	}
}

func TestHandleMentionIgnoresUnmentioned(t *testing.T) {
	p := &captureProcessor{}
	h := NewHandler(p, knownDirectory(), botID, nil)

	resp := postMention(t, h, MentionEvent{
		MessageID: "1003",
		AuthorID:  "user-7",
		Content:   "just chatting",
	})
	if resp["ignored"] != "not_mentioned" {
		t.Errorf("expected not_mentioned ignore, got %v", resp)
	}
}

func TestHandleMentionUnknownUser(t *testing.T) {
	p := &captureProcessor{}
	h := NewHandler(p, &stubDirectory{}, botID, nil)

	resp := postMention(t, h, MentionEvent{
		MessageID: "1004",
		AuthorID:  "stranger",
		Content:   "<@bot-42> do a thing",
		Mentions:  []string{botID},
	})
	reply, _ := resp["reply"].(string)
	if reply == "" || p.msg != nil {
		t.Errorf("unknown user should get a reply and no pipeline run: %v", resp)
	}
}

func TestHandleMentionEmptyContentCooldown(t *testing.T) {
	p := &captureProcessor{}
	h := NewHandler(p, knownDirectory(), botID, dedup.NewCooldown(time.Minute))

	ev := MentionEvent{
		MessageID: "1005",
		ChannelID: "chan-9",
		AuthorID:  "user-7",
		Content:   "<@bot-42>",
		Mentions:  []string{botID},
	}

	first := postMention(t, h, ev)
	if first["reply"] == nil {
		t.Fatalf("first bare mention should get the help reply: %v", first)
	}

	ev.MessageID = "1006"
	second := postMention(t, h, ev)
	if second["ignored"] != "cooldown" {
		t.Errorf("second bare mention within the window should be suppressed: %v", second)
	}
}

func TestRelayAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := "relay-secret"
	router := gin.New()
	router.Use(RelayAuthMiddleware(secret, botID))
	router.POST("/hook", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"bot": c.GetString("botID")})
	})

	call := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/hook", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	if w := call(""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing header: status = %d", w.Code)
	}
	if w := call("Basic abc"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong scheme: status = %d", w.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"bot_id": botID,
		"exp":    time.Now().Add(time.Minute).Unix(),
	})
	signed, _ := token.SignedString([]byte(secret))
	if w := call("Bearer " + signed); w.Code != http.StatusOK {
		t.Errorf("valid token rejected: %d %s", w.Code, w.Body.String())
	}

	wrong, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"bot_id": botID,
	}).SignedString([]byte("other-secret"))
	if w := call("Bearer " + wrong); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret accepted: %d", w.Code)
	}

	otherBot, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"bot_id": "impostor",
	}).SignedString([]byte(secret))
	if w := call("Bearer " + otherBot); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong bot id accepted: %d", w.Code)
	}
}
