package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/casedesk-backend/internal/data/repos/conversations"
	"github.com/yungbote/casedesk-backend/internal/data/repos/eventlog"
	"github.com/yungbote/casedesk-backend/internal/data/repos/requirements"
	"github.com/yungbote/casedesk-backend/internal/data/repos/tasks"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

type ConversationRepo = conversations.ConversationRepo
type TaskRepo = tasks.TaskRepo
type RequirementRepo = requirements.RequirementRepo

type EventLogRepo = eventlog.EventLogRepo
type OutboxRepo = eventlog.OutboxRepo
type OutboxStats = eventlog.OutboxStats

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return conversations.NewConversationRepo(db, baseLog)
}
func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return tasks.NewTaskRepo(db, baseLog)
}
func NewRequirementRepo(db *gorm.DB, baseLog *logger.Logger) RequirementRepo {
	return requirements.NewRequirementRepo(db, baseLog)
}

func NewEventLogRepo(db *gorm.DB, baseLog *logger.Logger) EventLogRepo {
	return eventlog.NewEventLogRepo(db, baseLog)
}
func NewOutboxRepo(db *gorm.DB, baseLog *logger.Logger) OutboxRepo {
	return eventlog.NewOutboxRepo(db, baseLog)
}
