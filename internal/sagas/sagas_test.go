package sagas

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/casedesk-backend/internal/data/aggregates"
	"github.com/yungbote/casedesk-backend/internal/data/repos"
	"github.com/yungbote/casedesk-backend/internal/data/repos/testutil"
	"github.com/yungbote/casedesk-backend/internal/domain/conversation"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/domain/requirement"
	"github.com/yungbote/casedesk-backend/internal/domain/task"
	"github.com/yungbote/casedesk-backend/internal/eventbus"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
	"github.com/yungbote/casedesk-backend/internal/services"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type stubSummarizer struct {
	summary string
	err     error
}

func (s stubSummarizer) SummarizeConversation(context.Context, string) (string, error) {
	return s.summary, s.err
}

type recorder struct {
	mu   sync.Mutex
	seen map[events.Type][]events.DomainEvent
}

func (r *recorder) handler() eventbus.Handler {
	return eventbus.Func("test.recorder", func(_ context.Context, ev events.DomainEvent) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.seen[ev.Type] = append(r.seen[ev.Type], ev)
		return nil
	})
}

func (r *recorder) count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen[t])
}

func (r *recorder) last(t events.Type) events.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.seen[t]
	return evs[len(evs)-1]
}

type fixture struct {
	bus    *eventbus.Bus
	outbox repos.OutboxRepo
	convs  services.ConversationService
	tasks  services.TaskService
	reqs   services.RequirementService
	rec    *recorder
}

func newFixture(t *testing.T, summarizer Summarizer) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	clock := func() time.Time { return t0 }

	f := &fixture{
		bus:    eventbus.New(log),
		outbox: repos.NewOutboxRepo(db, log),
		rec:    &recorder{seen: map[events.Type][]events.DomainEvent{}},
	}
	store := aggregates.NewEventStore(aggregates.EventStoreDeps{
		BaseDeps: aggregates.BaseDeps{DB: db, Log: log},
		EventLog: repos.NewEventLogRepo(db, log),
		Outbox:   f.outbox,
		Bus:      f.bus,
		Now:      clock,
	})
	opts := services.Options{Now: clock}
	f.convs = services.NewConversationService(log,
		aggregates.NewConversationRepository(store, repos.NewConversationRepo(db, log)),
		conversation.SLAEvaluator{}, opts)
	f.tasks = services.NewTaskService(log, aggregates.NewTaskRepository(store, repos.NewTaskRepo(db, log)), opts)
	f.reqs = services.NewRequirementService(log, aggregates.NewRequirementRepository(store, repos.NewRequirementRepo(db, log)), opts)

	completed := NewTaskCompletedHandler(log, f.tasks, f.convs, f.bus)
	completed.Now = clock
	handlers := Handlers{
		TaskCompleted:            completed,
		ConversationReadyToClose: NewConversationReadyToCloseHandler(log, f.convs, summarizer),
		RequirementCreated:       NewRequirementCreatedHandler(log, f.tasks),
	}
	if err := handlers.Register(f.bus); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, typ := range []events.Type{events.TaskCompleted, events.ConversationReadyToClose, events.ConversationClosed} {
		if err := f.bus.Subscribe(typ, f.rec.handler()); err != nil {
			t.Fatalf("Subscribe recorder: %v", err)
		}
	}
	return f
}

func (f *fixture) openConversation(t *testing.T) *conversation.Conversation {
	t.Helper()
	c, err := f.convs.OpenConversation(t.Context(), conversation.NewInput{CustomerID: "cust-1", AgentID: "agent-1", Channel: "web"})
	if err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	return c
}

func (f *fixture) createTask(t *testing.T, convID, title string) *task.Task {
	t.Helper()
	tk, err := f.tasks.CreateTask(t.Context(), task.NewInput{Title: title, ConversationID: convID, AssigneeID: "agent-1"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return tk
}

func TestConversationClosesOnceAllTasksComplete(t *testing.T) {
	f := newFixture(t, stubSummarizer{summary: "Refund issued."})
	ctx := t.Context()
	c := f.openConversation(t)
	first := f.createTask(t, c.ID(), "Verify account")
	second := f.createTask(t, c.ID(), "Issue refund")

	if err := f.tasks.CompleteTask(ctx, first.ID(), task.CompleteInput{CompletedBy: "agent-1"}); err != nil {
		t.Fatalf("complete first: %v", err)
	}
	if n := f.rec.count(events.ConversationReadyToClose); n != 0 {
		t.Fatalf("ready-to-close after one of two tasks: want=0 got=%d", n)
	}
	got, _ := f.convs.GetConversation(ctx, c.ID())
	if got.IsClosed() {
		t.Fatalf("conversation closed with a task still open")
	}

	if err := f.tasks.CompleteTask(ctx, second.ID(), task.CompleteInput{CompletedBy: "agent-1"}); err != nil {
		t.Fatalf("complete second: %v", err)
	}
	if n := f.rec.count(events.ConversationReadyToClose); n != 1 {
		t.Fatalf("ready-to-close: want=1 got=%d", n)
	}
	var ready events.ConversationReadyToClosePayload
	if err := f.rec.last(events.ConversationReadyToClose).Decode(&ready); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if ready.CompletedTasksCount != 2 || ready.Reason != ReadyToCloseReason {
		t.Fatalf("ready payload: %+v", ready)
	}

	got, err := f.convs.GetConversation(ctx, c.ID())
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if !got.IsClosed() {
		t.Fatalf("conversation status: want=closed got=%s", got.Status())
	}
	if want := "All 2 tasks completed. Refund issued."; got.Resolution() != want {
		t.Fatalf("resolution: want=%q got=%q", want, got.Resolution())
	}
	if n := f.rec.count(events.ConversationClosed); n != 1 {
		t.Fatalf("ConversationClosed: want=1 got=%d", n)
	}

	stats, err := f.outbox.Stats(dbctx.Background(ctx))
	if err != nil || stats.Pending != 0 {
		t.Fatalf("outbox after saga: stats=%+v err=%v", stats, err)
	}
}

func TestTaskCompletedRedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	c := f.openConversation(t)
	tk := f.createTask(t, c.ID(), "Call back")
	if err := f.tasks.CompleteTask(ctx, tk.ID(), task.CompleteInput{}); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	completed := f.rec.last(events.TaskCompleted)

	for i := 0; i < 2; i++ {
		if err := f.bus.Publish(ctx, completed); err != nil {
			t.Fatalf("redeliver %d: %v", i, err)
		}
	}
	if n := f.rec.count(events.ConversationReadyToClose); n != 1 {
		t.Fatalf("ready-to-close after redelivery: want=1 got=%d", n)
	}
	if n := f.rec.count(events.ConversationClosed); n != 1 {
		t.Fatalf("ConversationClosed after redelivery: want=1 got=%d", n)
	}
	got, _ := f.convs.GetConversation(ctx, c.ID())
	if want := "All 1 tasks completed. " + ReadyToCloseReason; got.Resolution() != want {
		t.Fatalf("resolution without summarizer: want=%q got=%q", want, got.Resolution())
	}
}

func TestCancelledTasksCountAsFinishedButNotCompleted(t *testing.T) {
	f := newFixture(t, stubSummarizer{err: errors.New("model offline")})
	ctx := t.Context()
	c := f.openConversation(t)
	dropped := f.createTask(t, c.ID(), "Escalate")
	done := f.createTask(t, c.ID(), "Reply")

	if err := f.tasks.CancelTask(ctx, dropped.ID(), "not needed"); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if err := f.tasks.CompleteTask(ctx, done.ID(), task.CompleteInput{}); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	got, _ := f.convs.GetConversation(ctx, c.ID())
	if want := "All 1 tasks completed. " + ReadyToCloseReason; got.Resolution() != want {
		t.Fatalf("resolution: want=%q got=%q", want, got.Resolution())
	}
}

func TestTaskWithoutConversationIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	tk := f.createTask(t, "", "Internal cleanup")
	if err := f.tasks.CompleteTask(t.Context(), tk.ID(), task.CompleteInput{}); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if n := f.rec.count(events.ConversationReadyToClose); n != 0 {
		t.Fatalf("ready-to-close for a standalone task: want=0 got=%d", n)
	}
}

func TestAlreadyClosedConversationIsLeftAlone(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	c := f.openConversation(t)
	tk := f.createTask(t, c.ID(), "Follow up")
	if err := f.convs.CloseConversation(ctx, c.ID(), "Customer resolved it"); err != nil {
		t.Fatalf("CloseConversation: %v", err)
	}
	if err := f.tasks.CompleteTask(ctx, tk.ID(), task.CompleteInput{}); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if n := f.rec.count(events.ConversationReadyToClose); n != 0 {
		t.Fatalf("ready-to-close for a closed conversation: want=0 got=%d", n)
	}
	got, _ := f.convs.GetConversation(ctx, c.ID())
	if got.Resolution() != "Customer resolved it" {
		t.Fatalf("resolution overwritten: %q", got.Resolution())
	}
}

func TestRequirementCreatedOpensExactlyOneFollowUpTask(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	req, err := f.reqs.CreateRequirement(ctx, requirement.NewInput{
		ConversationID: "conv-9",
		CustomerID:     "cust-1",
		Content:        "Payment page returns 500",
		Priority:       requirement.PriorityUrgent,
		Source:         requirement.SourceManual,
		Confidence:     0.6,
	})
	if err != nil {
		t.Fatalf("CreateRequirement: %v", err)
	}

	tasks, err := f.tasks.ListByRequirement(ctx, req.ID())
	if err != nil {
		t.Fatalf("ListByRequirement: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("auto tasks: want=1 got=%d", len(tasks))
	}
	tk := tasks[0]
	md := tk.Metadata()
	if md["autoCreated"] != true || md["source"] != AutoTaskSource || md["requirementEventId"] == "" {
		t.Fatalf("task metadata: %v", md)
	}
	if _, ok := md["notifyCustomer"]; ok {
		t.Fatalf("requirements with a conversation need no outreach: %v", md)
	}
	if tk.Priority() != task.PriorityHigh || tk.ConversationID() != "conv-9" || tk.ID() != FollowUpTaskID(req.ID()) {
		t.Fatalf("task: priority=%s conversation=%s id=%s", tk.Priority(), tk.ConversationID(), tk.ID())
	}

	created := events.New(events.AggregateRequirement, req.ID(), events.RequirementCreated, 1, events.RequirementCreatedPayload{
		RequirementID: req.ID(),
		CustomerID:    "cust-1",
		Content:       "Payment page returns 500",
		Priority:      string(requirement.PriorityUrgent),
		Source:        requirement.SourceManual,
	}, t0)
	if err := f.bus.Publish(ctx, created); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	tasks, _ = f.tasks.ListByRequirement(ctx, req.ID())
	if len(tasks) != 1 {
		t.Fatalf("auto tasks after redelivery: want=1 got=%d", len(tasks))
	}
}

func TestRequirementCreatedRule(t *testing.T) {
	cases := []struct {
		name     string
		priority requirement.Priority
		source   string
		want     int
		taskPrio task.Priority
	}{
		{"low manual", requirement.PriorityLow, requirement.SourceManual, 0, ""},
		{"medium ai detected", requirement.PriorityMedium, requirement.SourceAIDetected, 0, ""},
		{"low from customer", requirement.PriorityLow, requirement.SourceCustomer, 1, task.PriorityLow},
		{"medium from conversation", requirement.PriorityMedium, requirement.SourceConversation, 1, task.PriorityMedium},
		{"high manual", requirement.PriorityHigh, requirement.SourceManual, 1, task.PriorityHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			req, err := f.reqs.CreateRequirement(t.Context(), requirement.NewInput{
				CustomerID: "cust-1",
				Content:    "Export is slow",
				Priority:   tc.priority,
				Source:     tc.source,
			})
			if err != nil {
				t.Fatalf("CreateRequirement: %v", err)
			}
			tasks, _ := f.tasks.ListByRequirement(t.Context(), req.ID())
			if len(tasks) != tc.want {
				t.Fatalf("auto tasks: want=%d got=%d", tc.want, len(tasks))
			}
			if tc.want == 1 && tasks[0].Priority() != tc.taskPrio {
				t.Fatalf("task priority: want=%s got=%s", tc.taskPrio, tasks[0].Priority())
			}
		})
	}
}

func TestFollowUpTaskFlagsCustomerOutreach(t *testing.T) {
	cases := []struct {
		name     string
		priority requirement.Priority
		source   string
		category string
		want     bool
	}{
		{"high without conversation", requirement.PriorityHigh, requirement.SourceManual, "billing", true},
		{"bug from customer", requirement.PriorityLow, requirement.SourceCustomer, "Bug", true},
		{"billing from customer", requirement.PriorityMedium, requirement.SourceCustomer, "billing", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			req, err := f.reqs.CreateRequirement(t.Context(), requirement.NewInput{
				CustomerID: "cust-1",
				Content:    "Export is slow",
				Category:   tc.category,
				Priority:   tc.priority,
				Source:     tc.source,
			})
			if err != nil {
				t.Fatalf("CreateRequirement: %v", err)
			}
			if req.NeedsCustomerCommunication() != tc.want {
				t.Fatalf("NeedsCustomerCommunication: want=%v", tc.want)
			}
			tasks, _ := f.tasks.ListByRequirement(t.Context(), req.ID())
			if len(tasks) != 1 {
				t.Fatalf("auto tasks: want=1 got=%d", len(tasks))
			}
			if got := tasks[0].Metadata()["notifyCustomer"] == true; got != tc.want {
				t.Fatalf("notifyCustomer: want=%v got=%v", tc.want, got)
			}
		})
	}
}

func TestFollowUpTitle(t *testing.T) {
	long := "The customer reports that the invoice export has been failing every night since the upgrade last week"
	got := followUpTitle(long)
	if got[:11] != "Follow up: " {
		t.Fatalf("title prefix: %q", got)
	}
	if want := len("Follow up: ") + maxTitleContent + len("..."); len(got) != want {
		t.Fatalf("title length: want=%d got=%d", want, len(got))
	}
	if got := followUpTitle("  refund\n please "); got != "Follow up: refund please" {
		t.Fatalf("title whitespace: %q", got)
	}
}

func TestTranscriptDigest(t *testing.T) {
	f := newFixture(t, nil)
	c := f.openConversation(t)
	digest := NewTranscriptDigest(f.convs)

	got, err := digest.SummarizeConversation(t.Context(), c.ID())
	if err != nil || got != "" {
		t.Fatalf("empty transcript: got=%q err=%v", got, err)
	}

	for _, m := range []conversation.MessageInput{
		{SenderID: "cust-1", SenderType: conversation.SenderCustomer, Content: "My card was charged twice"},
		{SenderID: "agent-1", SenderType: conversation.SenderAgent, Content: "Refund issued,\n  allow 3 days."},
		{SenderID: "cust-1", SenderType: conversation.SenderCustomer, Content: "Thanks"},
	} {
		if _, err := f.convs.SendMessage(t.Context(), c.ID(), m); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}
	got, err = digest.SummarizeConversation(t.Context(), c.ID())
	want := `3 messages over web (2 from customer, 1 from agent). Last reply: "Refund issued, allow 3 days."`
	if err != nil || got != want {
		t.Fatalf("digest: want=%q got=%q err=%v", want, got, err)
	}

	if _, err := digest.SummarizeConversation(t.Context(), "missing"); err == nil {
		t.Fatalf("unknown conversation: want error")
	}
}
