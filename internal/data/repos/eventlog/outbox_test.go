package eventlog

import (
	"testing"
	"time"

	"github.com/yungbote/casedesk-backend/internal/data/repos/testutil"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestOutboxLifecycle(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOutboxRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: t.Context()}

	first := events.New(events.AggregateTask, "t-1", events.TaskCreated, 1, events.TaskCreatedPayload{TaskID: "t-1"}, t0)
	second := events.New(events.AggregateTask, "t-1", events.TaskStarted, 1, events.TaskStartedPayload{TaskID: "t-1"}, t0)
	if err := repo.Enqueue(dbc, []events.DomainEvent{first, second}, t0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	due, err := repo.ListDue(dbc, t0, t0, 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 2 || due[0].EventID != first.ID || due[1].EventID != second.ID {
		t.Fatalf("ListDue order: want [%s %s] got=%v", first.ID, second.ID, due)
	}
	ev, err := due[0].Event()
	if err != nil || ev.Type != events.TaskCreated {
		t.Fatalf("Event(): err=%v type=%s", err, ev.Type)
	}

	if err := repo.MarkFailed(dbc, first.ID, 1, t0.Add(time.Minute), "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	due, _ = repo.ListDue(dbc, t0.Add(30*time.Second), t0, 10)
	if len(due) != 0 {
		t.Fatalf("later rows wait behind a backed off head, got=%d rows", len(due))
	}
	due, _ = repo.ListDue(dbc, t0.Add(time.Minute), t0, 10)
	if len(due) != 2 || due[0].EventID != first.ID {
		t.Fatalf("after backoff both rows are due in order, got=%d rows", len(due))
	}

	if err := repo.MarkDispatched(dbc, second.ID, t0); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	if err := repo.MarkDeadLettered(dbc, first.ID, 3, t0.Add(2*time.Minute), "still boom"); err != nil {
		t.Fatalf("MarkDeadLettered: %v", err)
	}
	stats, err := repo.Stats(dbc)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 0 || stats.Dispatched != 1 || stats.DeadLettered != 1 {
		t.Fatalf("stats: %+v", stats)
	}

	dead, err := repo.ListDeadLettered(dbc, 10)
	if err != nil || len(dead) != 1 || dead[0].Attempts != 3 || dead[0].LastError != "still boom" {
		t.Fatalf("ListDeadLettered: err=%v rows=%v", err, dead)
	}
	ok, err := repo.Requeue(dbc, first.ID, t0.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("Requeue: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.Requeue(dbc, second.ID, t0); ok {
		t.Fatalf("dispatched rows cannot be requeued")
	}
	row, err := repo.GetByID(dbc, first.ID)
	if err != nil || row == nil || row.Attempts != 0 || row.DeadLetteredAt != nil {
		t.Fatalf("requeued row: err=%v row=%+v", err, row)
	}
}

func TestEventLogListByAggregate(t *testing.T) {
	db := testutil.DB(t)
	repo := NewEventLogRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: t.Context()}

	v1 := events.New(events.AggregateConversation, "c-1", events.ConversationCreated, 1, events.ConversationCreatedPayload{ConversationID: "c-1"}, t0)
	v2a := events.New(events.AggregateConversation, "c-1", events.MessageSent, 2, events.MessageSentPayload{ConversationID: "c-1"}, t0)
	v2b := events.New(events.AggregateConversation, "c-1", events.SLAViolated, 2, events.SLAViolatedPayload{ConversationID: "c-1"}, t0)
	if err := repo.Append(dbc, []events.DomainEvent{v2a, v2b}); err != nil {
		t.Fatalf("Append v2: %v", err)
	}
	if err := repo.Append(dbc, []events.DomainEvent{v1}); err != nil {
		t.Fatalf("Append v1: %v", err)
	}
	rows, err := repo.ListByAggregate(dbc, "c-1")
	if err != nil {
		t.Fatalf("ListByAggregate: %v", err)
	}
	want := []string{v1.ID, v2a.ID, v2b.ID}
	if len(rows) != len(want) {
		t.Fatalf("rows: want=%d got=%d", len(want), len(rows))
	}
	for i, id := range want {
		if rows[i].EventID != id {
			t.Fatalf("row %d: want=%s got=%s", i, id, rows[i].EventID)
		}
	}
}

func TestListDueSkipsOnlyTheBlockedAggregate(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOutboxRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: t.Context()}

	a1 := events.New(events.AggregateTask, "t-a", events.TaskCreated, 1, events.TaskCreatedPayload{TaskID: "t-a"}, t0)
	a2 := events.New(events.AggregateTask, "t-a", events.TaskStarted, 2, events.TaskStartedPayload{TaskID: "t-a"}, t0)
	b1 := events.New(events.AggregateTask, "t-b", events.TaskCreated, 1, events.TaskCreatedPayload{TaskID: "t-b"}, t0)
	for _, ev := range []events.DomainEvent{a1, a2, b1} {
		if err := repo.Enqueue(dbc, []events.DomainEvent{ev}, t0); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := repo.MarkFailed(dbc, a1.ID, 1, t0.Add(time.Hour), "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	due, err := repo.ListDue(dbc, t0.Add(time.Second), t0, 10)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 || due[0].EventID != b1.ID {
		t.Fatalf("only t-b should be due, got=%d rows", len(due))
	}

	if err := repo.MarkDeadLettered(dbc, a1.ID, 3, t0, "gave up"); err != nil {
		t.Fatalf("MarkDeadLettered: %v", err)
	}
	due, _ = repo.ListDue(dbc, t0.Add(time.Second), t0, 10)
	if len(due) != 2 {
		t.Fatalf("dead-lettered head no longer blocks, got=%d rows", len(due))
	}
}

func TestHasUndeliveredLooksOnlyAtEarlierLiveRows(t *testing.T) {
	db := testutil.DB(t)
	repo := NewOutboxRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: t.Context()}

	v1 := events.New(events.AggregateTask, "t-1", events.TaskCreated, 1, events.TaskCreatedPayload{TaskID: "t-1"}, t0)
	v2 := events.New(events.AggregateTask, "t-1", events.TaskStarted, 2, events.TaskStartedPayload{TaskID: "t-1"}, t0)
	other := events.New(events.AggregateTask, "t-2", events.TaskCreated, 1, events.TaskCreatedPayload{TaskID: "t-2"}, t0)
	for _, ev := range []events.DomainEvent{v1, v2, other} {
		if err := repo.Enqueue(dbc, []events.DomainEvent{ev}, t0); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	check := func(id string, before int, want bool) {
		t.Helper()
		got, err := repo.HasUndelivered(dbc, string(events.AggregateTask), id, before)
		if err != nil {
			t.Fatalf("HasUndelivered(%s, %d): %v", id, before, err)
		}
		if got != want {
			t.Fatalf("HasUndelivered(%s, %d): want=%v got=%v", id, before, want, got)
		}
	}

	check("t-1", 1, false)
	check("t-1", 3, true)
	check("t-1", 2, true)

	if err := repo.MarkDispatched(dbc, v1.ID, t0); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	check("t-1", 2, false)
	check("t-1", 3, true)

	if err := repo.MarkDeadLettered(dbc, v2.ID, 3, t0, "gave up"); err != nil {
		t.Fatalf("MarkDeadLettered: %v", err)
	}
	check("t-1", 3, false)

	got, err := repo.HasUndelivered(dbc, string(events.AggregateConversation), "t-2", 5)
	if err != nil || got {
		t.Fatalf("aggregate type is part of the key: got=%v err=%v", got, err)
	}
}
