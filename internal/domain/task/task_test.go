package task

import (
	"testing"
	"time"

	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTask(t *testing.T) *Task {
	t.Helper()
	tk, err := New(NewInput{Title: "Refund order 1182", ConversationID: "c-1", Priority: PriorityHigh}, t0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tk.MarkCommitted(1)
	return tk
}

func TestCompleteIsTerminal(t *testing.T) {
	tk := newTask(t)
	if err := tk.Start(t0.Add(time.Minute)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	score := 0.9
	if err := tk.Complete(CompleteInput{QualityScore: &score}, t0.Add(11*time.Minute)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if tk.Progress() != 100 || tk.Duration() != 10*time.Minute {
		t.Fatalf("complete: want progress=100 duration=10m got progress=%d duration=%v", tk.Progress(), tk.Duration())
	}
	tk.MarkCommitted(2)

	if err := tk.Start(t0); !domainagg.IsInvalidState(err) {
		t.Fatalf("start completed: want invalid state got=%v", err)
	}
	if err := tk.Complete(CompleteInput{}, t0); !domainagg.IsInvalidState(err) {
		t.Fatalf("complete twice: want invalid state got=%v", err)
	}
	if err := tk.Cancel("nope", t0); !domainagg.IsInvalidState(err) {
		t.Fatalf("cancel completed: want invalid state got=%v", err)
	}
	if err := tk.UpdateProgress(50, t0); !domainagg.IsInvalidState(err) {
		t.Fatalf("progress on completed: want invalid state got=%v", err)
	}
	if len(tk.UncommittedEvents()) != 0 {
		t.Fatalf("rejected commands emitted events: %v", tk.UncommittedEvents())
	}
}

func TestCompletedPayloadCarriesConversation(t *testing.T) {
	tk := newTask(t)
	if err := tk.Complete(CompleteInput{}, t0); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	evs := tk.UncommittedEvents()
	if len(evs) != 1 || evs[0].Type != events.TaskCompleted {
		t.Fatalf("want single TaskCompleted got=%v", evs)
	}
	var p events.TaskCompletedPayload
	if err := evs[0].Decode(&p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.ConversationID == nil || *p.ConversationID != "c-1" || p.DurationSeconds != 0 {
		t.Fatalf("payload: %+v", p)
	}
}

func TestUpdateProgressAutoStarts(t *testing.T) {
	tk := newTask(t)
	if err := tk.UpdateProgress(101, t0); !domainagg.IsValidation(err) {
		t.Fatalf("out of range: want validation got=%v", err)
	}
	if err := tk.UpdateProgress(0, t0); err != nil || tk.Status() != StatusTodo {
		t.Fatalf("zero progress should not start: err=%v status=%s", err, tk.Status())
	}
	if err := tk.UpdateProgress(30, t0); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if tk.Status() != StatusInProgress || tk.StartedAt() == nil {
		t.Fatalf("want in_progress with start time, got=%s", tk.Status())
	}
	var p events.TaskStartedPayload
	if err := tk.UncommittedEvents()[0].Decode(&p); err != nil || !p.Automatic {
		t.Fatalf("want automatic TaskStarted, err=%v payload=%+v", err, p)
	}
	if err := tk.Start(t0); err != nil || len(tk.UncommittedEvents()) != 1 {
		t.Fatalf("start while in progress should be a no-op, err=%v events=%d", err, len(tk.UncommittedEvents()))
	}
}

func TestCancelAndReassign(t *testing.T) {
	tk := newTask(t)
	if err := tk.Reassign("", t0); !domainagg.IsValidation(err) {
		t.Fatalf("empty assignee: want validation got=%v", err)
	}
	if err := tk.Reassign("agent-9", t0); err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	if err := tk.Cancel("duplicate", t0); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := tk.Reassign("agent-3", t0); !domainagg.IsInvalidState(err) {
		t.Fatalf("reassign cancelled: want invalid state got=%v", err)
	}
	evs := tk.UncommittedEvents()
	if len(evs) != 2 || evs[0].Type != events.TaskReassigned || evs[1].Type != events.TaskCancelled {
		t.Fatalf("events: %v", evs)
	}
}

func TestOverdueAndEscalation(t *testing.T) {
	due := t0.Add(time.Hour)
	low, _ := New(NewInput{Title: "low", Priority: PriorityLow, DueDate: &due}, t0)
	high, _ := New(NewInput{Title: "high", Priority: PriorityHigh, DueDate: &due}, t0)

	if low.IsOverdue(t0) {
		t.Fatalf("not yet overdue")
	}
	later := due.Add(2 * time.Hour)
	if !low.IsOverdue(later) || low.NeedsEscalation(later) {
		t.Fatalf("low priority: want overdue without escalation")
	}
	if !high.NeedsEscalation(later) {
		t.Fatalf("high priority overdue should escalate")
	}
	if !low.NeedsEscalation(due.Add(25 * time.Hour)) {
		t.Fatalf("a day overdue should escalate")
	}
}
