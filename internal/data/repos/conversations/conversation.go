package conversations

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/casedesk-backend/internal/domain/conversation"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

type ConversationRepo interface {
	GetByID(dbc dbctx.Context, id string) (*conversation.Record, error)
	ListByCustomer(dbc dbctx.Context, customerID string, limit int) ([]*conversation.Record, error)
	ListSLAWatch(dbc dbctx.Context, deadlineBefore time.Time, limit int) ([]*conversation.Record, error)
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return &conversationRepo{
		db:  db,
		log: baseLog.With("repo", "ConversationRepo"),
	}
}

// GetByID returns nil, nil when the conversation does not exist.
func (r *conversationRepo) GetByID(dbc dbctx.Context, id string) (*conversation.Record, error) {
	if id == "" {
		return nil, nil
	}
	var rows []*conversation.Record
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *conversationRepo) ListByCustomer(dbc dbctx.Context, customerID string, limit int) ([]*conversation.Record, error) {
	var out []*conversation.Record
	if customerID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	err := dbc.DB(r.db).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSLAWatch returns non-closed conversations whose deadline is before the
// cutoff and that have not already been marked violated.
func (r *conversationRepo) ListSLAWatch(dbc dbctx.Context, deadlineBefore time.Time, limit int) ([]*conversation.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*conversation.Record
	err := dbc.DB(r.db).
		Where("status <> ? AND sla_deadline IS NOT NULL AND sla_deadline <= ? AND sla_status <> ?",
			string(conversation.StatusClosed), deadlineBefore.UTC(), string(conversation.SLAViolated)).
		Order("sla_deadline ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
