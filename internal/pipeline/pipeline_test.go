package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskpilot-backend/internal/authz"
	"taskpilot-backend/internal/dedup"
	inteldomain "taskpilot-backend/internal/intel/domain"
	ledgerdomain "taskpilot-backend/internal/ledger/domain"
	msgdomain "taskpilot-backend/internal/message/domain"
	orgdomain "taskpilot-backend/internal/org/domain"
	"taskpilot-backend/internal/planner"
	"taskpilot-backend/internal/relationship"
	"taskpilot-backend/internal/thread"
	taskdomain "taskpilot-backend/internal/task/domain"
	taskrepo "taskpilot-backend/internal/task/repository"
	"taskpilot-backend/pkg/ai"
)

// --- fakes ---

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]*ledgerdomain.ProcessingRecord
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*ledgerdomain.ProcessingRecord)}
}

func (l *fakeLedger) TryBegin(messageID, orgKey, channel string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, exists := l.records[messageID]; exists {
		// Same reclaim rule as the gorm ledger: a record left in error
		// by a failed attempt is taken over so the retry is accepted.
		if rec.Status == ledgerdomain.StatusError {
			rec.Status = ledgerdomain.StatusProcessing
			return true, nil
		}
		return false, nil
	}
	l.records[messageID] = &ledgerdomain.ProcessingRecord{
		MessageID:       messageID,
		OrganizationKey: orgKey,
		Channel:         channel,
		Status:          ledgerdomain.StatusProcessing,
	}
	return true, nil
}

func (l *fakeLedger) Finish(messageID string, status ledgerdomain.RecordStatus, result ledgerdomain.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[messageID]; ok {
		rec.Status = status
		rec.Result = result
	}
	return nil
}

func (l *fakeLedger) FindByMessageID(messageID string) (*ledgerdomain.ProcessingRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[messageID], nil
}

func (l *fakeLedger) status(messageID string) ledgerdomain.RecordStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[messageID]; ok {
		return rec.Status
	}
	return ""
}

type fakeOrgs struct {
	org *orgdomain.Organization
}

func (o *fakeOrgs) FindByRoutingKey(key string) (*orgdomain.Organization, error) {
	if o.org != nil && o.org.RoutingKey == key {
		return o.org, nil
	}
	return nil, nil
}

func (o *fakeOrgs) FindMemberByChatID(string) (*orgdomain.Member, *orgdomain.Organization, error) {
	return nil, nil, nil
}

type fakeTasks struct {
	mu           sync.Mutex
	tasks        []*taskdomain.Task
	activity     []*taskdomain.TaskActivity
	monthlyQuota int
	used         int
	failCreates  int
}

func (f *fakeTasks) CreateAllWithQuota(tasks []*taskdomain.Task, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates > 0 {
		f.failCreates--
		return errors.New("connection reset by peer")
	}
	if f.monthlyQuota > 0 && f.used+len(tasks) > f.monthlyQuota {
		return taskrepo.ErrQuotaExceeded
	}
	f.tasks = append(f.tasks, tasks...)
	f.used += len(tasks)
	return nil
}

func (f *fakeTasks) FindByID(id string) (*taskdomain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTasks) FindBySourceMessageID(messageID string) (*taskdomain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.SourceMessageID == messageID {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTasks) FindByThreadRefs(refs []string) (*taskdomain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		for _, ref := range refs {
			if t.SourceMessageID == ref {
				return t, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeTasks) FindRecentDuplicate(orgID, title, sender string, since time.Time) (*taskdomain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.OrganizationID == orgID && t.Title == title && t.SenderEmail == sender && t.CreatedAt.After(since) {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTasks) FindByOrganization(string, *taskdomain.TaskStatus, int, int) ([]*taskdomain.Task, int64, error) {
	return nil, 0, nil
}

func (f *fakeTasks) Update(task *taskdomain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == task.ID {
			f.tasks[i] = task
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeTasks) AppendActivity(a *taskdomain.TaskActivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, a)
	return nil
}

func (f *fakeTasks) ListActivity(string) ([]*taskdomain.TaskActivity, error) { return nil, nil }

func (f *fakeTasks) FindPendingReminders(time.Time) ([]*taskdomain.Task, error) { return nil, nil }

func (f *fakeTasks) MarkReminderSent(string) error { return nil }

func (f *fakeTasks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

type fakeIntel struct{}

func (fakeIntel) Find(string, string) (*inteldomain.SenderIntelligence, error) { return nil, nil }
func (fakeIntel) RecordMessage(string, string, int, time.Time) error           { return nil }

type stubExtractor struct {
	candidates []ai.TaskCandidate
	err        error
}

func (s *stubExtractor) ExtractTasks(context.Context, ai.ExtractionRequest) ([]ai.TaskCandidate, error) {
	return s.candidates, s.err
}

func (s *stubExtractor) ResolveRelationship(context.Context, ai.ExtractionRequest) (*ai.Relationship, error) {
	return nil, errors.New("unavailable")
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) Send(_ context.Context, to, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+": "+subject)
	return nil
}

// --- harness ---

func testOrg() *orgdomain.Organization {
	return &orgdomain.Organization{
		ID:         "org-1",
		Name:       "Acme",
		RoutingKey: "acme",
		Members: []orgdomain.Member{
			{ID: "m-1", OrganizationID: "org-1", Email: "member@acme.com"},
		},
	}
}

func newTestPipeline(extractor ai.ExtractorService, tasks *fakeTasks, ledger *fakeLedger, mail *recordingMailer) *Pipeline {
	deps := Deps{
		InFlight:          dedup.NewLocalGuard(time.Minute),
		Ledger:            ledger,
		Organizations:     &fakeOrgs{org: testOrg()},
		Guard:             authz.NewGuard(tasks),
		Classifier:        thread.NewClassifier(tasks, time.Hour),
		Tasks:             tasks,
		Intel:             fakeIntel{},
		Extractor:         extractor,
		Resolver:          relationship.NewResolver(extractor, time.Second),
		Planner:           planner.NewPlanner(),
		ExtractionTimeout: time.Second,
	}
	if mail != nil {
		deps.Mailer = mail
	}
	return New(deps)
}

func emailMessage(id, sender, subject string) *msgdomain.InboundMessage {
	return &msgdomain.InboundMessage{
		Sender:     sender,
		Recipient:  "tasks@acme.com",
		RoutingKey: "acme",
		Subject:    subject,
		Body:       "Please take care of this when you can.",
		ReceivedAt: time.Now(),
		Channel:    msgdomain.ChannelEmail,
		MessageID:  id,
	}
}

// --- tests ---

func TestProcessCreatesTasks(t *testing.T) {
	tasks := &fakeTasks{}
	ledger := newFakeLedger()
	p := newTestPipeline(&stubExtractor{candidates: []ai.TaskCandidate{
		{Title: "Review Q3 budget", Priority: "high", PriorityScore: 80},
		{Title: "Send summary to finance", Priority: "medium", PriorityScore: 50},
	}}, tasks, ledger, nil)

	out, err := p.Process(context.Background(), emailMessage("<m1@mail>", "member@acme.com", "Budget"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != msgdomain.OutcomeCreated || len(out.TaskIDs) != 2 {
		t.Fatalf("expected created with 2 tasks, got %+v", out)
	}
	if tasks.count() != 2 {
		t.Errorf("expected 2 persisted tasks, got %d", tasks.count())
	}
	if got := ledger.status("<m1@mail>"); got != ledgerdomain.StatusDone {
		t.Errorf("ledger status = %q, want done", got)
	}
	if len(tasks.activity) != 2 {
		t.Errorf("expected a created activity per task, got %d", len(tasks.activity))
	}
}

func TestProcessConcurrentSameMessage(t *testing.T) {
	tasks := &fakeTasks{}
	ledger := newFakeLedger()
	p := newTestPipeline(&stubExtractor{candidates: []ai.TaskCandidate{
		{Title: "Only once", Priority: "medium", PriorityScore: 50},
	}}, tasks, ledger, nil)

	const workers = 16
	outcomes := make([]msgdomain.Outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], _ = p.Process(context.Background(), emailMessage("<race@mail>", "member@acme.com", "Race"))
		}(i)
	}
	wg.Wait()

	created := 0
	for _, out := range outcomes {
		switch out.Kind {
		case msgdomain.OutcomeCreated:
			created++
		case msgdomain.OutcomeDuplicate:
		default:
			t.Errorf("unexpected outcome kind %q", out.Kind)
		}
	}
	if created != 1 {
		t.Errorf("expected exactly 1 created outcome, got %d", created)
	}
	if tasks.count() != 1 {
		t.Errorf("expected exactly 1 persisted task, got %d", tasks.count())
	}
}

func TestProcessRejectsUnauthorizedSender(t *testing.T) {
	tasks := &fakeTasks{}
	ledger := newFakeLedger()
	p := newTestPipeline(&stubExtractor{}, tasks, ledger, nil)

	out, err := p.Process(context.Background(), emailMessage("<m2@mail>", "stranger@evil.com", "Hi"))
	if !errors.Is(err, ErrUnauthorizedSender) {
		t.Errorf("expected ErrUnauthorizedSender, got %v", err)
	}
	if out.Kind != msgdomain.OutcomeRejected || out.Reason != authz.ReasonSenderNotAuthorized {
		t.Fatalf("expected rejection, got %+v", out)
	}
	if tasks.count() != 0 {
		t.Errorf("rejected message must not create tasks, got %d", tasks.count())
	}
	if got := ledger.status("<m2@mail>"); got != ledgerdomain.StatusDone {
		t.Errorf("rejection should still finish the ledger record, got %q", got)
	}
}

func TestProcessUnknownOrganization(t *testing.T) {
	tasks := &fakeTasks{}
	p := newTestPipeline(&stubExtractor{}, tasks, newFakeLedger(), nil)

	msg := emailMessage("<m3@mail>", "member@acme.com", "Hi")
	msg.RoutingKey = "nobody"
	out, _ := p.Process(context.Background(), msg)
	if out.Kind != msgdomain.OutcomeRejected || out.Reason != "unknown_organization" {
		t.Fatalf("expected unknown_organization rejection, got %+v", out)
	}
}

func TestProcessExtractionFailureDegradesToHeuristic(t *testing.T) {
	tasks := &fakeTasks{}
	p := newTestPipeline(&stubExtractor{err: errors.New("provider down")}, tasks, newFakeLedger(), nil)

	out, err := p.Process(context.Background(), emailMessage("<m4@mail>", "member@acme.com", "Fix the deploy script"))
	if !errors.Is(err, ErrExtractionServiceFailure) {
		t.Errorf("expected advisory ErrExtractionServiceFailure, got %v", err)
	}
	if out.Kind != msgdomain.OutcomeCreated || len(out.TaskIDs) != 1 {
		t.Fatalf("expected one heuristic task, got %+v", out)
	}
	task, _ := tasks.FindByID(out.TaskID())
	if task.Title != "Fix the deploy script" {
		t.Errorf("heuristic title should come from the subject, got %q", task.Title)
	}
}

func TestProcessReplyAppliesCommand(t *testing.T) {
	tasks := &fakeTasks{}
	ledger := newFakeLedger()
	p := newTestPipeline(&stubExtractor{candidates: []ai.TaskCandidate{
		{Title: "Original task", Priority: "medium", PriorityScore: 50},
	}}, tasks, ledger, nil)

	first, _ := p.Process(context.Background(), emailMessage("<orig@mail>", "member@acme.com", "Original task"))
	if first.Kind != msgdomain.OutcomeCreated {
		t.Fatalf("setup failed: %+v", first)
	}

	reply := emailMessage("<reply@mail>", "member@acme.com", "Re: Original task")
	reply.InReplyTo = "<orig@mail>"
	reply.Body = "This is done, thanks!"

	out, err := p.Process(context.Background(), reply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != msgdomain.OutcomeUpdated {
		t.Fatalf("expected updated outcome, got %+v", out)
	}
	task, _ := tasks.FindByID(first.TaskID())
	if task.Status != taskdomain.TaskStatusDone {
		t.Errorf("reply 'done' should close the task, got %q", task.Status)
	}
	if tasks.count() != 1 {
		t.Errorf("a reply must not create a new task, got %d", tasks.count())
	}
}

func TestProcessForwardCreatesDespiteThreadRefs(t *testing.T) {
	tasks := &fakeTasks{}
	p := newTestPipeline(&stubExtractor{candidates: []ai.TaskCandidate{
		{Title: "Forwarded item", Priority: "medium", PriorityScore: 50},
	}}, tasks, newFakeLedger(), nil)

	first, _ := p.Process(context.Background(), emailMessage("<orig2@mail>", "member@acme.com", "Forwarded item"))
	if first.Kind != msgdomain.OutcomeCreated {
		t.Fatalf("setup failed: %+v", first)
	}

	fwd := emailMessage("<fwd@mail>", "member@acme.com", "Fwd: something else entirely")
	fwd.InReplyTo = "<orig2@mail>"

	out, _ := p.Process(context.Background(), fwd)
	if out.Kind != msgdomain.OutcomeCreated {
		t.Fatalf("forward should start a new task even inside a thread, got %+v", out)
	}
	if tasks.count() != 2 {
		t.Errorf("expected 2 tasks after forward, got %d", tasks.count())
	}
}

func TestProcessForgedForwardRejected(t *testing.T) {
	tasks := &fakeTasks{}
	ledger := newFakeLedger()
	p := newTestPipeline(&stubExtractor{candidates: []ai.TaskCandidate{
		{Title: "Legit work", Priority: "medium", PriorityScore: 50},
	}}, tasks, ledger, nil)

	first, _ := p.Process(context.Background(), emailMessage("<legit@mail>", "member@acme.com", "Legit work"))
	if first.Kind != msgdomain.OutcomeCreated {
		t.Fatalf("setup failed: %+v", first)
	}

	// An outsider pasting a real message id into In-Reply-To under a
	// forward subject must not ride the thread into authorization.
	forged := emailMessage("<forged@mail>", "stranger@evil.com", "Fwd: totally new request")
	forged.InReplyTo = "<legit@mail>"

	out, err := p.Process(context.Background(), forged)
	if !errors.Is(err, ErrUnauthorizedSender) {
		t.Errorf("expected ErrUnauthorizedSender, got %v", err)
	}
	if out.Kind != msgdomain.OutcomeRejected || out.Reason != authz.ReasonSenderNotAuthorized {
		t.Fatalf("forged forward should be rejected, got %+v", out)
	}
	if tasks.count() != 1 {
		t.Errorf("forged forward must not create a task, got %d tasks", tasks.count())
	}
}

func TestProcessRetryAfterPersistenceFailure(t *testing.T) {
	tasks := &fakeTasks{failCreates: 1}
	ledger := newFakeLedger()
	p := newTestPipeline(&stubExtractor{candidates: []ai.TaskCandidate{
		{Title: "Flaky write", Priority: "medium", PriorityScore: 50},
	}}, tasks, ledger, nil)

	msg := emailMessage("<retry@mail>", "member@acme.com", "Flaky write")
	out, err := p.Process(context.Background(), msg)
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	if out.Kind != msgdomain.OutcomeError {
		t.Fatalf("expected error outcome, got %+v", out)
	}
	if got := ledger.status("<retry@mail>"); got != ledgerdomain.StatusError {
		t.Fatalf("failed attempt should leave the ledger in error, got %q", got)
	}

	// The gateway redelivers the same message id; the errored record is
	// reclaimed and the message is processed, not collapsed as a duplicate.
	out, err = p.Process(context.Background(), emailMessage("<retry@mail>", "member@acme.com", "Flaky write"))
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if out.Kind != msgdomain.OutcomeCreated {
		t.Fatalf("retry after persistence failure should create, got %+v", out)
	}
	if tasks.count() != 1 {
		t.Errorf("expected 1 task after retry, got %d", tasks.count())
	}
	if got := ledger.status("<retry@mail>"); got != ledgerdomain.StatusDone {
		t.Errorf("retry should finish the ledger record, got %q", got)
	}
}

func TestProcessQuotaExceeded(t *testing.T) {
	tasks := &fakeTasks{monthlyQuota: 1, used: 1}
	ledger := newFakeLedger()
	mail := &recordingMailer{}
	p := newTestPipeline(&stubExtractor{candidates: []ai.TaskCandidate{
		{Title: "One too many", Priority: "medium", PriorityScore: 50},
	}}, tasks, ledger, mail)

	out, err := p.Process(context.Background(), emailMessage("<m5@mail>", "member@acme.com", "Overflow"))
	if err != nil {
		t.Fatalf("quota rejection is not an error: %v", err)
	}
	if out.Kind != msgdomain.OutcomeRejected || out.Reason != "quota_exceeded" {
		t.Fatalf("expected quota rejection, got %+v", out)
	}
	if len(mail.sent) != 1 {
		t.Errorf("expected a quota notice email, got %d", len(mail.sent))
	}
	if got := ledger.status("<m5@mail>"); got != ledgerdomain.StatusDone {
		t.Errorf("quota rejection should finish the ledger record, got %q", got)
	}
}

func TestProcessTitleSenderDuplicate(t *testing.T) {
	tasks := &fakeTasks{}
	p := newTestPipeline(&stubExtractor{candidates: []ai.TaskCandidate{
		{Title: "Weekly report", Priority: "medium", PriorityScore: 50},
	}}, tasks, newFakeLedger(), nil)

	first, _ := p.Process(context.Background(), emailMessage("<d1@mail>", "member@acme.com", "Weekly report"))
	if first.Kind != msgdomain.OutcomeCreated {
		t.Fatalf("setup failed: %+v", first)
	}

	out, _ := p.Process(context.Background(), emailMessage("<d2@mail>", "member@acme.com", "Weekly report"))
	if out.Kind != msgdomain.OutcomeDuplicate {
		t.Fatalf("same title and sender within the window should collapse, got %+v", out)
	}
	if out.TaskID() != first.TaskID() {
		t.Errorf("duplicate should point at the original task")
	}
	if tasks.count() != 1 {
		t.Errorf("expected 1 task, got %d", tasks.count())
	}
}

func TestProcessMissingRoutingKey(t *testing.T) {
	p := newTestPipeline(&stubExtractor{}, &fakeTasks{}, newFakeLedger(), nil)

	msg := emailMessage("<m6@mail>", "member@acme.com", "Hi")
	msg.RoutingKey = ""
	out, err := p.Process(context.Background(), msg)
	if !errors.Is(err, ErrRecipientUnresolvable) {
		t.Errorf("expected ErrRecipientUnresolvable, got %v", err)
	}
	if out.Kind != msgdomain.OutcomeRejected || out.Reason != "no_recipient" {
		t.Errorf("expected no_recipient rejection, got %+v", out)
	}
}
