package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/casedesk-backend/internal/domain/conversation"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/domain/requirement"
	"github.com/yungbote/casedesk-backend/internal/domain/task"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// Aggregates
		&conversation.Record{},
		&task.Record{},
		&requirement.Record{},

		// Event log + outbox
		&events.LogRecord{},
		&events.OutboxRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
