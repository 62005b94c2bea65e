package services

import (
	"context"
	"time"

	"github.com/yungbote/casedesk-backend/internal/domain/task"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

// TaskStore is satisfied by aggregates.TaskRepository.
type TaskStore interface {
	Load(ctx context.Context, id string) (*task.Task, error)
	Save(ctx context.Context, t *task.Task) error
	ListByConversation(ctx context.Context, conversationID string) ([]*task.Task, error)
	ListByRequirement(ctx context.Context, requirementID string) ([]*task.Task, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*task.Task, error)
}

type TaskService interface {
	CreateTask(ctx context.Context, in task.NewInput) (*task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	StartTask(ctx context.Context, id string) error
	CompleteTask(ctx context.Context, id string, in task.CompleteInput) error
	CancelTask(ctx context.Context, id, reason string) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	ReassignTask(ctx context.Context, id, assigneeID string) error
	ListByConversation(ctx context.Context, conversationID string) ([]*task.Task, error)
	ListByRequirement(ctx context.Context, requirementID string) ([]*task.Task, error)
	// ListEscalations returns overdue open tasks that need a supervisor:
	// high or urgent ones, and anything a day past due.
	ListEscalations(ctx context.Context, limit int) ([]*task.Task, error)
}

type taskService struct {
	log   *logger.Logger
	tasks TaskStore
	opts  Options
}

func NewTaskService(baseLog *logger.Logger, tasks TaskStore, opts Options) TaskService {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &taskService{
		log:   baseLog.With("service", "TaskService"),
		tasks: tasks,
		opts:  opts.withDefaults(),
	}
}

func (s *taskService) CreateTask(ctx context.Context, in task.NewInput) (*task.Task, error) {
	t, err := task.New(in, s.opts.Now())
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Save(ctx, t); err != nil {
		if IsDeliveryError(err) {
			return t, err
		}
		return nil, err
	}
	s.log.Info("Task created",
		"task_id", t.ID(),
		"conversation_id", t.ConversationID(),
		"requirement_id", t.RequirementID(),
		"priority", t.Priority(),
	)
	return t, nil
}

func (s *taskService) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return s.tasks.Load(ctx, id)
}

func (s *taskService) StartTask(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(t *task.Task, now time.Time) (bool, error) {
		if t.Status() == task.StatusInProgress {
			return false, nil
		}
		return true, t.Start(now)
	})
}

func (s *taskService) CompleteTask(ctx context.Context, id string, in task.CompleteInput) error {
	return s.mutate(ctx, id, func(t *task.Task, now time.Time) (bool, error) {
		return true, t.Complete(in, now)
	})
}

func (s *taskService) CancelTask(ctx context.Context, id, reason string) error {
	return s.mutate(ctx, id, func(t *task.Task, now time.Time) (bool, error) {
		return true, t.Cancel(reason, now)
	})
}

func (s *taskService) UpdateProgress(ctx context.Context, id string, progress int) error {
	return s.mutate(ctx, id, func(t *task.Task, now time.Time) (bool, error) {
		if t.Progress() == progress {
			return false, nil
		}
		return true, t.UpdateProgress(progress, now)
	})
}

func (s *taskService) ReassignTask(ctx context.Context, id, assigneeID string) error {
	return s.mutate(ctx, id, func(t *task.Task, now time.Time) (bool, error) {
		if t.AssigneeID() == assigneeID {
			return false, nil
		}
		return true, t.Reassign(assigneeID, now)
	})
}

func (s *taskService) ListByConversation(ctx context.Context, conversationID string) ([]*task.Task, error) {
	return s.tasks.ListByConversation(ctx, conversationID)
}

func (s *taskService) ListByRequirement(ctx context.Context, requirementID string) ([]*task.Task, error) {
	return s.tasks.ListByRequirement(ctx, requirementID)
}

func (s *taskService) ListEscalations(ctx context.Context, limit int) ([]*task.Task, error) {
	now := s.opts.Now()
	overdue, err := s.tasks.ListOverdue(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*task.Task, 0, len(overdue))
	for _, t := range overdue {
		if t.NeedsEscalation(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *taskService) mutate(ctx context.Context, id string, fn func(t *task.Task, now time.Time) (bool, error)) error {
	return RetryOnConflict(ctx, s.opts.Retry.Attempts, s.opts.Retry.Backoff, func(ctx context.Context) error {
		t, err := s.tasks.Load(ctx, id)
		if err != nil {
			return err
		}
		changed, err := fn(t, s.opts.Now())
		if err != nil {
			return err
		}
		if !changed && len(t.UncommittedEvents()) == 0 {
			return nil
		}
		return s.tasks.Save(ctx, t)
	})
}
