package requirements

import (
	"gorm.io/gorm"

	"github.com/yungbote/casedesk-backend/internal/domain/requirement"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

type RequirementRepo interface {
	GetByID(dbc dbctx.Context, id string) (*requirement.Record, error)
	ListByConversation(dbc dbctx.Context, conversationID string) ([]*requirement.Record, error)
}

type requirementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRequirementRepo(db *gorm.DB, baseLog *logger.Logger) RequirementRepo {
	return &requirementRepo{
		db:  db,
		log: baseLog.With("repo", "RequirementRepo"),
	}
}

func (r *requirementRepo) GetByID(dbc dbctx.Context, id string) (*requirement.Record, error) {
	if id == "" {
		return nil, nil
	}
	var rows []*requirement.Record
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *requirementRepo) ListByConversation(dbc dbctx.Context, conversationID string) ([]*requirement.Record, error) {
	var out []*requirement.Record
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
