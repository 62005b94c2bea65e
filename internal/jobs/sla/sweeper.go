package sla

import (
	"context"
	"time"

	"github.com/yungbote/casedesk-backend/internal/domain/task"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
	"github.com/yungbote/casedesk-backend/internal/services"
)

type Checker interface {
	SweepSLA(ctx context.Context, limit int) (services.SLASweepResult, error)
}

type EscalationLister interface {
	ListEscalations(ctx context.Context, limit int) ([]*task.Task, error)
}

// Sweeper periodically re-evaluates SLAs of open conversations so violations
// surface without waiting for the next mutation.
type Sweeper struct {
	checker Checker
	// Escalations is optional; when set each sweep also reports overdue tasks.
	Escalations EscalationLister
	log         *logger.Logger
	interval    time.Duration
	limit       int
}

func NewSweeper(baseLog *logger.Logger, checker Checker, interval time.Duration, limit int) *Sweeper {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if limit <= 0 {
		limit = 200
	}
	return &Sweeper{
		checker:  checker,
		log:      baseLog.With("component", "SLASweeper"),
		interval: interval,
		limit:    limit,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("Starting SLA sweeper", "interval", s.interval.String(), "limit", s.limit)
	go s.Run(ctx)
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("SLA sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) services.SLASweepResult {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("SLA sweep panic", "panic", r)
		}
	}()
	res, err := s.checker.SweepSLA(ctx, s.limit)
	if err != nil {
		s.log.Warn("SLA sweep failed", "error", err)
	}
	res.Escalations = s.escalate(ctx)
	if res.Changed > 0 || res.Failed > 0 || res.Escalations > 0 {
		s.log.Info("SLA sweep",
			"checked", res.Checked,
			"changed", res.Changed,
			"violated", res.Violated,
			"failed", res.Failed,
			"escalations", res.Escalations,
		)
	}
	return res
}

func (s *Sweeper) escalate(ctx context.Context) int {
	if s.Escalations == nil {
		return 0
	}
	overdue, err := s.Escalations.ListEscalations(ctx, s.limit)
	if err != nil {
		s.log.Warn("Escalation scan failed", "error", err)
		return 0
	}
	for _, t := range overdue {
		due := ""
		if d := t.DueDate(); d != nil {
			due = d.Format(time.RFC3339)
		}
		s.log.Warn("Task needs escalation",
			"task_id", t.ID(),
			"priority", t.Priority(),
			"assignee_id", t.AssigneeID(),
			"conversation_id", t.ConversationID(),
			"due_date", due,
		)
	}
	return len(overdue)
}
