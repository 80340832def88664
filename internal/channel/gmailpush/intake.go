// Package gmailpush is the push-based email intake: Gmail publishes
// inbox changes to a Pub/Sub topic and we pull new messages into the
// pipeline with no polling delay.
package gmailpush

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	msgdomain "taskpilot-backend/internal/message/domain"
)

// gmailNotification is the payload Gmail publishes on the topic.
type gmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Processor is the pipeline surface the intake needs.
type Processor interface {
	Process(ctx context.Context, msg *msgdomain.InboundMessage) (msgdomain.Outcome, error)
}

// Config holds the Pub/Sub and Gmail credentials for the ingest inbox.
type Config struct {
	ProjectID       string
	TopicName       string
	CredentialsFile string

	ClientID      string
	ClientSecret  string
	RefreshToken  string
	IngestAddress string
}

// Intake subscribes to the Gmail notification topic and feeds new
// messages into the pipeline.
type Intake struct {
	pubsubClient *pubsub.Client
	mailbox      *mailboxClient
	processor    Processor
	topicName    string
	subName      string

	// Notifications arrive at least once and history ids only grow, so
	// tracking the last one seen per address drops redeliveries.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewIntake(ctx context.Context, cfg Config, processor Processor) (*Intake, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	mailbox, err := newMailboxClient(ctx, cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken, cfg.IngestAddress)
	if err != nil {
		return nil, err
	}

	return &Intake{
		pubsubClient:  client,
		mailbox:       mailbox,
		processor:     processor,
		topicName:     cfg.TopicName,
		subName:       cfg.TopicName + "-sub",
		lastHistoryID: make(map[string]uint64),
	}, nil
}

// Start blocks receiving notifications until the context is cancelled.
// Run it in its own goroutine.
func (i *Intake) Start(ctx context.Context) {
	log.Printf("[GmailPush] Starting intake with topic: %s, subscription: %s", i.topicName, i.subName)

	sub := i.pubsubClient.Subscription(i.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[GmailPush] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := i.pubsubClient.Topic(i.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[GmailPush] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[GmailPush] Topic %s does not exist, cannot create subscription", i.topicName)
			return
		}

		sub, err = i.pubsubClient.CreateSubscription(ctx, i.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[GmailPush] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[GmailPush] Created subscription: %s", i.subName)
	}

	log.Printf("[GmailPush] Listening for messages on subscription: %s", i.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		i.handleNotification(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[GmailPush] Error receiving messages: %v", err)
	}
}

func (i *Intake) handleNotification(ctx context.Context, data []byte) {
	var n gmailNotification
	if err := json.Unmarshal(data, &n); err != nil {
		log.Printf("[GmailPush] Failed to unmarshal notification: %v", err)
		return
	}

	last, fresh := i.claimHistoryID(n.EmailAddress, n.HistoryID)
	if !fresh {
		log.Printf("[GmailPush] Skipping stale notification for %s (historyId %d)", n.EmailAddress, n.HistoryID)
		return
	}
	if last == 0 {
		// First notification after startup: nothing to diff against,
		// the next one will carry the changes.
		return
	}

	ids, err := i.mailbox.addedMessageIDs(last)
	if err != nil {
		log.Printf("[GmailPush] History listing failed for %s: %v", n.EmailAddress, err)
		return
	}

	for _, id := range ids {
		msg, err := i.mailbox.fetchMessage(id)
		if err != nil {
			log.Printf("[GmailPush] Fetch failed for %s: %v", id, err)
			continue
		}

		outcome, err := i.processor.Process(ctx, msg)
		if err != nil {
			log.Printf("[GmailPush] message %s: %v", msg.MessageID, err)
		}
		log.Printf("[GmailPush] message %s outcome=%s", msg.MessageID, outcome.Kind)
	}
}

// claimHistoryID records the notification's history id and reports the
// previous value. fresh is false for ids we have already seen.
func (i *Intake) claimHistoryID(address string, historyID uint64) (last uint64, fresh bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	last = i.lastHistoryID[address]
	if historyID <= last {
		return last, false
	}
	i.lastHistoryID[address] = historyID
	return last, true
}
