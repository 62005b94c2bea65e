package sla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/casedesk-backend/internal/domain/task"
	"github.com/yungbote/casedesk-backend/internal/services"
)

type spyChecker struct {
	calls  int
	limit  int
	res    services.SLASweepResult
	err    error
	panics bool
}

func (s *spyChecker) SweepSLA(_ context.Context, limit int) (services.SLASweepResult, error) {
	s.calls++
	s.limit = limit
	if s.panics {
		panic("boom")
	}
	return s.res, s.err
}

func TestSweepOnce(t *testing.T) {
	spy := &spyChecker{res: services.SLASweepResult{Checked: 3, Changed: 1, Violated: 1}}
	s := NewSweeper(nil, spy, 0, 25)
	res := s.SweepOnce(t.Context())
	if spy.calls != 1 || spy.limit != 25 {
		t.Fatalf("checker calls=%d limit=%d", spy.calls, spy.limit)
	}
	if res.Violated != 1 {
		t.Fatalf("result: want violated=1 got=%+v", res)
	}

	spy.err = errors.New("db down")
	s.SweepOnce(t.Context())

	spy.panics = true
	s.SweepOnce(t.Context())
	if spy.calls != 3 {
		t.Fatalf("checker calls after failures: want=3 got=%d", spy.calls)
	}
}

type spyEscalations struct {
	tasks []*task.Task
	err   error
	limit int
}

func (s *spyEscalations) ListEscalations(_ context.Context, limit int) ([]*task.Task, error) {
	s.limit = limit
	return s.tasks, s.err
}

func TestSweepOnceReportsEscalations(t *testing.T) {
	due := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	overdue, err := task.New(task.NewInput{Title: "refund", Priority: task.PriorityHigh, DueDate: &due}, due.Add(-time.Hour))
	if err != nil {
		t.Fatalf("task.New: %v", err)
	}
	esc := &spyEscalations{tasks: []*task.Task{overdue}}
	s := NewSweeper(nil, &spyChecker{err: errors.New("db down")}, 0, 25)
	s.Escalations = esc

	res := s.SweepOnce(t.Context())
	if res.Escalations != 1 || esc.limit != 25 {
		t.Fatalf("escalations survive an SLA failure: res=%+v limit=%d", res, esc.limit)
	}

	esc.err = errors.New("scan failed")
	if res := s.SweepOnce(t.Context()); res.Escalations != 0 {
		t.Fatalf("failed scan: want 0 escalations got=%d", res.Escalations)
	}
}
