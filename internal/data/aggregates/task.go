package aggregates

import (
	"context"
	"time"

	"github.com/yungbote/casedesk-backend/internal/data/repos"
	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/task"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
)

type TaskRepository struct {
	store *EventStore
	rows  repos.TaskRepo
}

func NewTaskRepository(store *EventStore, rows repos.TaskRepo) *TaskRepository {
	return &TaskRepository{store: store, rows: rows}
}

func (r *TaskRepository) Load(ctx context.Context, id string) (*task.Task, error) {
	const op = "task.load"
	rec, err := r.rows.GetByID(dbctx.Background(ctx), id)
	if err != nil {
		return nil, MapError(op, err)
	}
	if rec == nil {
		return nil, domainagg.NotFound(op, "task", id)
	}
	t, err := task.FromRecord(rec)
	if err != nil {
		return nil, MapError(op, err)
	}
	return t, nil
}

func (r *TaskRepository) Save(ctx context.Context, t *task.Task) error {
	return r.store.Save(ctx, t, task.Record{}.TableName(), func(version int) (any, error) {
		return task.ToRecord(t, version)
	})
}

func (r *TaskRepository) ListByConversation(ctx context.Context, conversationID string) ([]*task.Task, error) {
	recs, err := r.rows.ListByConversation(dbctx.Background(ctx), conversationID)
	if err != nil {
		return nil, MapError("task.list_by_conversation", err)
	}
	return tasksFromRecords(recs)
}

func (r *TaskRepository) ListByRequirement(ctx context.Context, requirementID string) ([]*task.Task, error) {
	recs, err := r.rows.ListByRequirement(dbctx.Background(ctx), requirementID)
	if err != nil {
		return nil, MapError("task.list_by_requirement", err)
	}
	return tasksFromRecords(recs)
}

func (r *TaskRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*task.Task, error) {
	recs, err := r.rows.ListOverdue(dbctx.Background(ctx), now, limit)
	if err != nil {
		return nil, MapError("task.list_overdue", err)
	}
	return tasksFromRecords(recs)
}

func tasksFromRecords(recs []*task.Record) ([]*task.Task, error) {
	out := make([]*task.Task, 0, len(recs))
	for _, rec := range recs {
		t, err := task.FromRecord(rec)
		if err != nil {
			return nil, MapError("task.decode", err)
		}
		out = append(out, t)
	}
	return out, nil
}
