// Package imapintake polls a shared IMAP mailbox and feeds unseen mail
// into the pipeline. It is the intake path for organizations that
// cannot point a webhook at us and just forward mail to a mailbox.
package imapintake

import (
	"context"
	"io"
	"log"
	"mime"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	emailchan "taskpilot-backend/internal/channel/email"
	msgdomain "taskpilot-backend/internal/message/domain"
)

// Processor is the pipeline surface the poller needs.
type Processor interface {
	Process(ctx context.Context, msg *msgdomain.InboundMessage) (msgdomain.Outcome, error)
}

// Config holds the mailbox connection settings.
type Config struct {
	Server   string // host:port, TLS
	Username string
	Password string
	Mailbox  string // defaults to INBOX
	Interval time.Duration
}

// Poller periodically connects, drains unseen mail and marks it seen.
// A fresh connection per sweep keeps the loop simple and survives
// server-side idle disconnects.
type Poller struct {
	cfg       Config
	processor Processor
	stopChan  chan struct{}
}

func NewPoller(cfg Config, processor Processor) *Poller {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Poller{cfg: cfg, processor: processor, stopChan: make(chan struct{})}
}

// Start begins the polling loop
func (p *Poller) Start() {
	log.Printf("[IMAPIntake] Starting mailbox poller for %s (interval: %s)", p.cfg.Username, p.cfg.Interval)

	go func() {
		p.sweep()

		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.sweep()
			case <-p.stopChan:
				log.Println("[IMAPIntake] Poller stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the poller
func (p *Poller) Stop() {
	close(p.stopChan)
}

func (p *Poller) sweep() {
	c, err := client.DialTLS(p.cfg.Server, nil)
	if err != nil {
		log.Printf("[IMAPIntake] connection error: %v", err)
		return
	}
	defer c.Logout()

	if err := c.Login(p.cfg.Username, p.cfg.Password); err != nil {
		log.Printf("[IMAPIntake] login error: %v", err)
		return
	}
	if _, err := c.Select(p.cfg.Mailbox, false); err != nil {
		log.Printf("[IMAPIntake] mailbox selection error: %v", err)
		return
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := c.Search(criteria)
	if err != nil {
		log.Printf("[IMAPIntake] search error: %v", err)
		return
	}
	if len(uids) == 0 {
		return
	}

	log.Printf("[IMAPIntake] found %d unseen message(s)", len(uids))

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchInternalDate}
	messages := make(chan *imap.Message, len(uids))

	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	processed := new(imap.SeqSet)
	for raw := range messages {
		msg, err := parseMessage(raw, section)
		if err != nil {
			log.Printf("[IMAPIntake] parse error for seq %d: %v", raw.SeqNum, err)
			processed.AddNum(raw.SeqNum)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		outcome, err := p.processor.Process(ctx, msg)
		cancel()
		if err != nil {
			log.Printf("[IMAPIntake] message %s: %v", msg.MessageID, err)
		}
		log.Printf("[IMAPIntake] message %s outcome=%s", msg.MessageID, outcome.Kind)
		processed.AddNum(raw.SeqNum)
	}
	if err := <-done; err != nil {
		log.Printf("[IMAPIntake] fetch error: %v", err)
	}

	// Mark everything we looked at as seen, even parse failures. A
	// message we cannot parse now will not parse next sweep either.
	if !processed.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.Store(processed, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			log.Printf("[IMAPIntake] store error: %v", err)
		}
	}
}

func parseMessage(raw *imap.Message, section *imap.BodySectionName) (*msgdomain.InboundMessage, error) {
	r := raw.GetBody(section)
	if r == nil {
		return nil, io.EOF
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, err
	}
	header := mr.Header

	recipient := ""
	if toList, err := header.AddressList("To"); err == nil && len(toList) > 0 {
		recipient = toList[0].Address
	}
	recipient = emailchan.RecoverRecipient(recipient, map[string]string{
		"X-Original-To": header.Get("X-Original-To"),
		"Delivered-To":  header.Get("Delivered-To"),
	})

	subject := header.Get("Subject")
	if decoded, err := decodeHeader(subject); err == nil {
		subject = decoded
	}

	receivedAt := raw.InternalDate
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	msg := &msgdomain.InboundMessage{
		Sender:     extractAddress(header.Get("From")),
		Recipient:  recipient,
		RoutingKey: emailchan.RoutingKeyFromAddress(recipient),
		Subject:    subject,
		Body:       plainBody(mr),
		ReceivedAt: receivedAt,
		Channel:    msgdomain.ChannelEmail,
		MessageID:  header.Get("Message-Id"),
		InReplyTo:  header.Get("In-Reply-To"),
		References: strings.Fields(header.Get("References")),
	}
	return msg, nil
}

// plainBody walks the MIME parts and keeps text/plain, falling back to
// text/html when no plain part exists.
func plainBody(mr *mail.Reader) string {
	var plain, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			break
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := h.ContentType()
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			if body, err := io.ReadAll(p.Body); err == nil {
				plain = string(body)
			}
		case "text/html":
			if body, err := io.ReadAll(p.Body); err == nil {
				html = string(body)
			}
		}
	}
	if plain != "" {
		return plain
	}
	return html
}

func extractAddress(fromHeader string) string {
	if addr, err := netmail.ParseAddress(fromHeader); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.TrimSpace(fromHeader))
}

func decodeHeader(encoded string) (string, error) {
	decoder := new(mime.WordDecoder)
	return decoder.DecodeHeader(encoded)
}
