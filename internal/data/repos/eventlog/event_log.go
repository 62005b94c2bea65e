package eventlog

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

// EventLogRepo is the append-only store of every persisted domain event.
type EventLogRepo interface {
	Append(dbc dbctx.Context, evs []events.DomainEvent) error
	ListByAggregate(dbc dbctx.Context, aggregateID string) ([]*events.LogRecord, error)
}

type eventLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventLogRepo(db *gorm.DB, baseLog *logger.Logger) EventLogRepo {
	return &eventLogRepo{
		db:  db,
		log: baseLog.With("repo", "EventLogRepo"),
	}
}

func (r *eventLogRepo) Append(dbc dbctx.Context, evs []events.DomainEvent) error {
	if len(evs) == 0 {
		return nil
	}
	rows := make([]*events.LogRecord, 0, len(evs))
	for i, ev := range evs {
		rows = append(rows, &events.LogRecord{
			EventID:       ev.ID,
			AggregateID:   ev.AggregateID,
			AggregateType: string(ev.AggregateType),
			EventType:     string(ev.Type),
			Version:       ev.Version,
			Seq:           i,
			Payload:       datatypes.JSON(ev.Payload),
			OccurredAt:    ev.OccurredAt,
		})
	}
	return dbc.DB(r.db).Create(&rows).Error
}

func (r *eventLogRepo) ListByAggregate(dbc dbctx.Context, aggregateID string) ([]*events.LogRecord, error) {
	var out []*events.LogRecord
	if aggregateID == "" {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("aggregate_id = ?", aggregateID).
		Order("version ASC, seq ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
