// Package pipeline is the orchestrator every channel adapter hands its
// normalized message to. It owns the processing order: in-flight guard,
// idempotency ledger, organization lookup, authorization, thread
// classification, extraction, relationship resolution, planning,
// quota-checked persistence, then post-commit effects.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskpilot-backend/internal/authz"
	"taskpilot-backend/internal/dedup"
	inteldomain "taskpilot-backend/internal/intel/domain"
	intelrepo "taskpilot-backend/internal/intel/repository"
	ledgerdomain "taskpilot-backend/internal/ledger/domain"
	ledgerrepo "taskpilot-backend/internal/ledger/repository"
	msgdomain "taskpilot-backend/internal/message/domain"
	orgdomain "taskpilot-backend/internal/org/domain"
	orgrepo "taskpilot-backend/internal/org/repository"
	"taskpilot-backend/internal/planner"
	"taskpilot-backend/internal/relationship"
	"taskpilot-backend/internal/thread"
	taskdomain "taskpilot-backend/internal/task/domain"
	taskrepo "taskpilot-backend/internal/task/repository"
	"taskpilot-backend/pkg/ai"
	"taskpilot-backend/pkg/contextstore"
	"taskpilot-backend/pkg/mailer"
)

// Pipeline wires the processing stages together. Construct with New;
// the zero value is not usable.
type Pipeline struct {
	inflight   dedup.InFlightGuard
	ledger     ledgerrepo.LedgerRepository
	orgs       orgrepo.OrganizationRepository
	guard      *authz.Guard
	classifier *thread.Classifier
	tasks      taskrepo.TaskRepository
	intel      intelrepo.IntelRepository

	extractor ai.ExtractorService
	heuristic *ai.HeuristicExtractor
	resolver  *relationship.Resolver
	planner   *planner.Planner

	contexts *contextstore.Store // optional
	mail     mailer.Mailer

	extractionTimeout time.Duration
	now               func() time.Time
}

// Deps collects everything the pipeline needs. Contexts may be nil.
type Deps struct {
	InFlight          dedup.InFlightGuard
	Ledger            ledgerrepo.LedgerRepository
	Organizations     orgrepo.OrganizationRepository
	Guard             *authz.Guard
	Classifier        *thread.Classifier
	Tasks             taskrepo.TaskRepository
	Intel             intelrepo.IntelRepository
	Extractor         ai.ExtractorService
	Resolver          *relationship.Resolver
	Planner           *planner.Planner
	Contexts          *contextstore.Store
	Mailer            mailer.Mailer
	ExtractionTimeout time.Duration
}

func New(d Deps) *Pipeline {
	if d.ExtractionTimeout <= 0 {
		d.ExtractionTimeout = 30 * time.Second
	}
	if d.Mailer == nil {
		d.Mailer = mailer.LogMailer{}
	}
	return &Pipeline{
		inflight:          d.InFlight,
		ledger:            d.Ledger,
		orgs:              d.Organizations,
		guard:             d.Guard,
		classifier:        d.Classifier,
		tasks:             d.Tasks,
		intel:             d.Intel,
		extractor:         d.Extractor,
		heuristic:         ai.NewHeuristicExtractor(),
		resolver:          d.Resolver,
		planner:           d.Planner,
		contexts:          d.Contexts,
		mail:              d.Mailer,
		extractionTimeout: d.ExtractionTimeout,
		now:               time.Now,
	}
}

// Process runs one message through the pipeline and always returns a
// terminal outcome. The error return is advisory, for logging and
// metrics: it names the taxonomy error behind a rejected or errored
// outcome, or a provider degrade behind a created one. Callers act on
// the outcome, never on the error.
func (p *Pipeline) Process(ctx context.Context, msg *msgdomain.InboundMessage) (msgdomain.Outcome, error) {
	if msg.MessageID == "" {
		return msgdomain.Rejected("missing_message_id"), nil
	}
	if msg.RoutingKey == "" {
		return msgdomain.Rejected("no_recipient"), ErrRecipientUnresolvable
	}

	// In-flight guard: collapse same-id deliveries racing within this
	// process before they contend on the database.
	ok, err := p.inflight.Begin(ctx, msg.MessageID)
	if err != nil {
		log.Printf("[Pipeline] in-flight guard degraded: %v", err)
	} else if !ok {
		return p.duplicateOutcome(msg.MessageID), nil
	}
	defer p.inflight.End(ctx, msg.MessageID)

	accepted, err := p.ledger.TryBegin(msg.MessageID, msg.RoutingKey, string(msg.Channel))
	if err != nil {
		return msgdomain.Errored("ledger_unavailable"), fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if !accepted {
		return p.duplicateOutcome(msg.MessageID), nil
	}

	org, err := p.orgs.FindByRoutingKey(msg.RoutingKey)
	if err != nil {
		p.finish(msg.MessageID, ledgerdomain.StatusError, ledgerdomain.Result{Reason: "organization_lookup_failed"})
		return msgdomain.Errored("organization_lookup_failed"), fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if org == nil {
		p.finish(msg.MessageID, ledgerdomain.StatusDone, ledgerdomain.Result{Reason: "unknown_organization"})
		return msgdomain.Rejected("unknown_organization"), nil
	}

	decision, err := p.guard.Authorize(org, msg)
	if err != nil {
		p.finish(msg.MessageID, ledgerdomain.StatusError, ledgerdomain.Result{Reason: "authorization_failed"})
		return msgdomain.Errored("authorization_failed"), fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if !decision.Allowed {
		log.Printf("[Pipeline] rejected sender=%s org=%s reason=%s", msg.Sender, org.RoutingKey, decision.Reason)
		p.finish(msg.MessageID, ledgerdomain.StatusDone, ledgerdomain.Result{Reason: decision.Reason})
		return msgdomain.Rejected(decision.Reason), fmt.Errorf("%w: %s", ErrUnauthorizedSender, msg.Sender)
	}

	disposition, err := p.classifier.Classify(org.ID, msg)
	if err != nil {
		p.finish(msg.MessageID, ledgerdomain.StatusError, ledgerdomain.Result{Reason: "classification_failed"})
		return msgdomain.Errored("classification_failed"), fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	switch disposition.State {
	case thread.StateDuplicate:
		p.finish(msg.MessageID, ledgerdomain.StatusDone, ledgerdomain.Result{Reason: "duplicate"})
		return msgdomain.Duplicate(disposition.Task.ID), nil
	case thread.StateReply:
		return p.processReply(ctx, disposition.Task, msg)
	}

	return p.processNew(ctx, org, msg)
}

// duplicateOutcome points the caller at the task a previous delivery
// created, when one exists.
func (p *Pipeline) duplicateOutcome(messageID string) msgdomain.Outcome {
	task, err := p.tasks.FindBySourceMessageID(messageID)
	if err != nil || task == nil {
		return msgdomain.Duplicate("")
	}
	return msgdomain.Duplicate(task.ID)
}

// processReply applies the reply's embedded command to the existing task.
func (p *Pipeline) processReply(ctx context.Context, task *taskdomain.Task, msg *msgdomain.InboundMessage) (msgdomain.Outcome, error) {
	cmd := thread.ParseCommand(msg.Body, p.now())

	var changes []string
	switch cmd.Kind {
	case thread.CommandStatusChange:
		task.Status = cmd.Status
		changes = append(changes, "status="+string(cmd.Status))
	case thread.CommandPriorityChange:
		task.Priority = cmd.Priority
		changes = append(changes, "priority="+string(cmd.Priority))
	case thread.CommandDueDateChange:
		due := p.planner.ClampDue(cmd.DueDate)
		task.DueDate = &due
		changes = append(changes, "due_date="+due.Format("2006-01-02"))
	case thread.CommandReminderSet:
		at := p.planner.ClampDue(cmd.RemindAt)
		task.ReminderAt = &at
		task.ReminderSent = false
		changes = append(changes, "reminder_at="+at.Format("2006-01-02 15:04"))
	default:
		changes = append(changes, "note")
	}

	if cmd.Kind != thread.CommandNone {
		if err := p.tasks.Update(task); err != nil {
			p.finish(msg.MessageID, ledgerdomain.StatusError, ledgerdomain.Result{Reason: "task_update_failed"})
			return msgdomain.Errored("task_update_failed"), fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
	}

	p.appendActivity(task.ID, "reply_update", strings.Join(changes, ", "), msg.Sender)
	p.recordIntel(msg, 0)

	p.finish(msg.MessageID, ledgerdomain.StatusDone, ledgerdomain.Result{
		TaskTitles: []string{task.Title},
		Reason:     "reply_applied",
	})
	return msgdomain.Updated(task.ID, changes), nil
}

// processNew extracts, resolves, plans and persists tasks for a fresh
// message.
func (p *Pipeline) processNew(ctx context.Context, org *orgdomain.Organization, msg *msgdomain.InboundMessage) (msgdomain.Outcome, error) {
	intel, err := p.intel.Find(org.RoutingKey, msg.Sender)
	if err != nil {
		log.Printf("[Pipeline] sender intelligence unavailable: %v", err)
		intel = nil
	}

	req := ai.ExtractionRequest{
		Subject:        msg.Subject,
		Body:           msg.Body,
		Sender:         msg.Sender,
		Recipient:      msg.Recipient,
		ThreadContext:  p.similarTitles(ctx, org.RoutingKey, msg),
		PrioritySignal: prioritySignal(intel),
	}

	candidates, extractErr := p.extract(ctx, req)
	resolution := p.resolver.Resolve(ctx, req)

	now := p.now()
	tasks := make([]*taskdomain.Task, 0, len(candidates))
	for i, cand := range candidates {
		plan := p.planner.BuildPlan(msg, intel, cand.DueDate)

		task := &taskdomain.Task{
			ID:              uuid.NewString(),
			OrganizationID:  org.ID,
			Title:           cand.Title,
			Description:     cand.Description,
			Priority:        taskdomain.Priority(cand.Priority),
			Status:          taskdomain.TaskStatusPending,
			DueDate:         plan.Due.Date,
			Channel:         string(msg.Channel),
			SenderEmail:     msg.Sender,
			AssignedByEmail: resolution.AssignedByEmail,
			AssignedToEmail: resolution.AssignedToEmail,
			TaskType:        taskdomain.TaskType(resolution.TaskType),
			UserRole:        taskdomain.UserRole(resolution.UserRole),
			SourceMessageID: msg.MessageID,
			Analysis: taskdomain.Analysis{
				PriorityScore:  cand.PriorityScore,
				EffortEstimate: cand.EffortEstimate,
				Tags:           cand.Tags,
				Urgency:        string(plan.Urgency),
				DueConfidence:  plan.Due.Confidence,
				DueReasoning:   plan.Due.Reasoning,
				ThreadRefs:     msg.ThreadRefs(),
				Reminders:      plan.Reminders,
				TaskIndex:      i + 1,
				TaskTotal:      len(candidates),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if len(plan.Reminders) > 0 {
			first := plan.Reminders[0].At
			task.ReminderAt = &first
		}
		tasks = append(tasks, task)
	}

	if err := p.tasks.CreateAllWithQuota(tasks, org.ID); err != nil {
		if errors.Is(err, taskrepo.ErrQuotaExceeded) {
			p.notifyQuota(ctx, org, msg)
			p.finish(msg.MessageID, ledgerdomain.StatusDone, ledgerdomain.Result{Reason: "quota_exceeded"})
			return msgdomain.Rejected("quota_exceeded"), nil
		}
		p.finish(msg.MessageID, ledgerdomain.StatusError, ledgerdomain.Result{Reason: "task_create_failed"})
		return msgdomain.Errored("task_create_failed"), fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	// Post-commit effects are best effort: tasks exist, a failed side
	// effect must not turn the outcome into an error.
	p.recordIntel(msg, len(tasks))
	ids := make([]string, 0, len(tasks))
	titles := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
		titles = append(titles, t.Title)
		p.appendActivity(t.ID, "created", "created from "+string(msg.Channel)+" message", msg.Sender)
		p.indexTask(ctx, org.RoutingKey, t)
	}

	p.finish(msg.MessageID, ledgerdomain.StatusDone, ledgerdomain.Result{TaskTitles: titles})
	log.Printf("[Pipeline] created %d task(s) org=%s sender=%s", len(tasks), org.RoutingKey, msg.Sender)
	// extractErr reports a provider degrade for the caller's logs; the
	// heuristic candidates were persisted, so the outcome stays created.
	return msgdomain.Created(ids...), extractErr
}

// extract calls the configured provider under a timeout and degrades to
// the deterministic extractor on any failure. It never returns an empty
// slice; a provider failure is reported as a wrapped
// ErrExtractionServiceFailure alongside the heuristic candidates.
func (p *Pipeline) extract(ctx context.Context, req ai.ExtractionRequest) ([]ai.TaskCandidate, error) {
	var degraded error
	if p.extractor != nil {
		extractCtx, cancel := context.WithTimeout(ctx, p.extractionTimeout)
		defer cancel()

		candidates, err := p.extractor.ExtractTasks(extractCtx, req)
		if err == nil && len(candidates) > 0 {
			return candidates, nil
		}
		if err != nil {
			degraded = fmt.Errorf("%w: %v", ErrExtractionServiceFailure, err)
			log.Printf("[Pipeline] extraction failed, using heuristic fallback: %v", err)
		}
	}

	candidates, _ := p.heuristic.ExtractTasks(ctx, req)
	return candidates, degraded
}

// similarTitles asks the context index for related earlier tasks. Purely
// additive context; failures are logged and ignored.
func (p *Pipeline) similarTitles(ctx context.Context, orgKey string, msg *msgdomain.InboundMessage) []string {
	if p.contexts == nil {
		return nil
	}

	query := msg.Subject
	if query == "" {
		query = msg.Body
	}
	ids, err := p.contexts.SimilarTaskIDs(ctx, orgKey, query, 3)
	if err != nil {
		log.Printf("[Pipeline] context lookup failed: %v", err)
		return nil
	}

	titles := make([]string, 0, len(ids))
	for _, id := range ids {
		task, err := p.tasks.FindByID(id)
		if err != nil || task == nil {
			continue
		}
		titles = append(titles, task.Title)
	}
	return titles
}

func prioritySignal(intel *inteldomain.SenderIntelligence) string {
	if intel == nil || intel.MessagesSeen < 3 {
		return ""
	}
	if intel.AvgResponseSeconds > 0 && intel.AvgResponseSeconds < 3600 {
		return fmt.Sprintf("frequent sender (%d messages), fast responder", intel.MessagesSeen)
	}
	return fmt.Sprintf("frequent sender (%d messages)", intel.MessagesSeen)
}

func (p *Pipeline) recordIntel(msg *msgdomain.InboundMessage, tasksCreated int) {
	if err := p.intel.RecordMessage(msg.RoutingKey, msg.Sender, tasksCreated, msg.ReceivedAt); err != nil {
		log.Printf("[Pipeline] intelligence update failed: %v", err)
	}
}

func (p *Pipeline) appendActivity(taskID, kind, detail, actor string) {
	err := p.tasks.AppendActivity(&taskdomain.TaskActivity{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		Kind:       kind,
		Detail:     detail,
		ActorEmail: actor,
	})
	if err != nil {
		log.Printf("[Pipeline] activity append failed: %v", err)
	}
}

func (p *Pipeline) indexTask(ctx context.Context, orgKey string, task *taskdomain.Task) {
	if p.contexts == nil {
		return
	}
	if err := p.contexts.IndexTask(ctx, task.ID, orgKey, task.Title, task.Description); err != nil {
		log.Printf("[Pipeline] context index failed: %v", err)
	}
}

func (p *Pipeline) notifyQuota(ctx context.Context, org *orgdomain.Organization, msg *msgdomain.InboundMessage) {
	body := fmt.Sprintf(
		"Your organization %q has reached its monthly task quota (%d). The message %q was not turned into a task.",
		org.Name, org.MonthlyQuota, msg.Subject,
	)
	if err := p.mail.Send(ctx, msg.Sender, "Task quota reached", body); err != nil {
		log.Printf("[Pipeline] quota notice failed: %v", err)
	}
}

func (p *Pipeline) finish(messageID string, status ledgerdomain.RecordStatus, result ledgerdomain.Result) {
	if err := p.ledger.Finish(messageID, status, result); err != nil {
		log.Printf("[Pipeline] ledger finish failed for %s: %v", messageID, err)
	}
}
