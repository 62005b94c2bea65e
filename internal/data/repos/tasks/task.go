package tasks

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/casedesk-backend/internal/domain/task"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

type TaskRepo interface {
	GetByID(dbc dbctx.Context, id string) (*task.Record, error)
	ListByConversation(dbc dbctx.Context, conversationID string) ([]*task.Record, error)
	ListByRequirement(dbc dbctx.Context, requirementID string) ([]*task.Record, error)
	ListOverdue(dbc dbctx.Context, now time.Time, limit int) ([]*task.Record, error)
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{
		db:  db,
		log: baseLog.With("repo", "TaskRepo"),
	}
}

func (r *taskRepo) GetByID(dbc dbctx.Context, id string) (*task.Record, error) {
	if id == "" {
		return nil, nil
	}
	var rows []*task.Record
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *taskRepo) ListByConversation(dbc dbctx.Context, conversationID string) ([]*task.Record, error) {
	var out []*task.Record
	if conversationID == "" {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskRepo) ListByRequirement(dbc dbctx.Context, requirementID string) ([]*task.Record, error) {
	var out []*task.Record
	if requirementID == "" {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("requirement_id = ?", requirementID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListOverdue returns open tasks whose due date has passed, oldest due first.
func (r *taskRepo) ListOverdue(dbc dbctx.Context, now time.Time, limit int) ([]*task.Record, error) {
	if limit <= 0 {
		limit = 200
	}
	var out []*task.Record
	err := dbc.DB(r.db).
		Where("status IN ? AND due_date IS NOT NULL AND due_date < ?",
			[]string{string(task.StatusTodo), string(task.StatusInProgress)}, now.UTC()).
		Order("due_date ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
