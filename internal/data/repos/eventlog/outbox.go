package eventlog

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

type OutboxStats struct {
	Pending       int64      `json:"pending"`
	Dispatched    int64      `json:"dispatched"`
	DeadLettered  int64      `json:"dead_lettered"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

type OutboxRepo interface {
	Enqueue(dbc dbctx.Context, evs []events.DomainEvent, at time.Time) error
	GetByID(dbc dbctx.Context, eventID string) (*events.OutboxRecord, error)
	ListDue(dbc dbctx.Context, now, createdBefore time.Time, limit int) ([]*events.OutboxRecord, error)
	HasUndelivered(dbc dbctx.Context, aggregateType, aggregateID string, beforeVersion int) (bool, error)
	MarkDispatched(dbc dbctx.Context, eventID string, at time.Time) error
	MarkFailed(dbc dbctx.Context, eventID string, attempts int, nextAttemptAt time.Time, lastErr string) error
	MarkDeadLettered(dbc dbctx.Context, eventID string, attempts int, at time.Time, lastErr string) error
	ListDeadLettered(dbc dbctx.Context, limit int) ([]*events.OutboxRecord, error)
	Requeue(dbc dbctx.Context, eventID string, at time.Time) (bool, error)
	Stats(dbc dbctx.Context) (OutboxStats, error)
}

type outboxRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOutboxRepo(db *gorm.DB, baseLog *logger.Logger) OutboxRepo {
	return &outboxRepo{
		db:  db,
		log: baseLog.With("repo", "OutboxRepo"),
	}
}

func (r *outboxRepo) Enqueue(dbc dbctx.Context, evs []events.DomainEvent, at time.Time) error {
	if len(evs) == 0 {
		return nil
	}
	at = at.UTC()
	rows := make([]*events.OutboxRecord, 0, len(evs))
	for i, ev := range evs {
		envelope, err := events.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode outbox envelope %s: %w", ev.ID, err)
		}
		rows = append(rows, &events.OutboxRecord{
			EventID:       ev.ID,
			AggregateID:   ev.AggregateID,
			AggregateType: string(ev.AggregateType),
			EventType:     string(ev.Type),
			Version:       ev.Version,
			Seq:           i,
			Payload:       datatypes.JSON(envelope),
			CreatedAt:     at,
			NextAttemptAt: at,
		})
	}
	return dbc.DB(r.db).Create(&rows).Error
}

func (r *outboxRepo) GetByID(dbc dbctx.Context, eventID string) (*events.OutboxRecord, error) {
	var rows []*events.OutboxRecord
	if err := dbc.DB(r.db).Where("event_id = ?", eventID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// An aggregate's later rows wait while an earlier live row is backing off.
const blockedByEarlier = `NOT EXISTS (
	SELECT 1 FROM outbox_events AS prior
	WHERE prior.aggregate_id = outbox_events.aggregate_id
	  AND prior.dispatched_at IS NULL
	  AND prior.dead_lettered_at IS NULL
	  AND prior.next_attempt_at > ?
	  AND (prior.version < outbox_events.version
	       OR (prior.version = outbox_events.version AND prior.seq < outbox_events.seq)))`

// ListDue returns undelivered, live rows whose retry time has come, in
// per-aggregate commit order.
func (r *outboxRepo) ListDue(dbc dbctx.Context, now, createdBefore time.Time, limit int) ([]*events.OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	now = now.UTC()
	var out []*events.OutboxRecord
	err := dbc.DB(r.db).
		Where("dispatched_at IS NULL AND dead_lettered_at IS NULL AND next_attempt_at <= ? AND created_at <= ?", now, createdBefore.UTC()).
		Where(blockedByEarlier, now).
		Order("created_at ASC, aggregate_id ASC, version ASC, seq ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasUndelivered reports whether the aggregate still has a live row below
// beforeVersion. Dead-lettered rows do not count.
func (r *outboxRepo) HasUndelivered(dbc dbctx.Context, aggregateType, aggregateID string, beforeVersion int) (bool, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&events.OutboxRecord{}).
		Where("aggregate_type = ? AND aggregate_id = ? AND version < ?", aggregateType, aggregateID, beforeVersion).
		Where("dispatched_at IS NULL AND dead_lettered_at IS NULL").
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *outboxRepo) MarkDispatched(dbc dbctx.Context, eventID string, at time.Time) error {
	return dbc.DB(r.db).
		Model(&events.OutboxRecord{}).
		Where("event_id = ? AND dispatched_at IS NULL", eventID).
		Updates(map[string]interface{}{
			"dispatched_at": at.UTC(),
			"last_error":    "",
		}).Error
}

func (r *outboxRepo) MarkFailed(dbc dbctx.Context, eventID string, attempts int, nextAttemptAt time.Time, lastErr string) error {
	return dbc.DB(r.db).
		Model(&events.OutboxRecord{}).
		Where("event_id = ? AND dispatched_at IS NULL", eventID).
		Updates(map[string]interface{}{
			"attempts":        attempts,
			"next_attempt_at": nextAttemptAt.UTC(),
			"last_error":      truncate(lastErr, 2000),
		}).Error
}

func (r *outboxRepo) MarkDeadLettered(dbc dbctx.Context, eventID string, attempts int, at time.Time, lastErr string) error {
	return dbc.DB(r.db).
		Model(&events.OutboxRecord{}).
		Where("event_id = ? AND dispatched_at IS NULL", eventID).
		Updates(map[string]interface{}{
			"attempts":         attempts,
			"dead_lettered_at": at.UTC(),
			"last_error":       truncate(lastErr, 2000),
		}).Error
}

func (r *outboxRepo) ListDeadLettered(dbc dbctx.Context, limit int) ([]*events.OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*events.OutboxRecord
	err := dbc.DB(r.db).
		Where("dead_lettered_at IS NOT NULL AND dispatched_at IS NULL").
		Order("dead_lettered_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Requeue returns a dead-lettered row to the live queue with its attempt count reset.
func (r *outboxRepo) Requeue(dbc dbctx.Context, eventID string, at time.Time) (bool, error) {
	res := dbc.DB(r.db).
		Model(&events.OutboxRecord{}).
		Where("event_id = ? AND dead_lettered_at IS NOT NULL AND dispatched_at IS NULL", eventID).
		Updates(map[string]interface{}{
			"dead_lettered_at": nil,
			"attempts":         0,
			"next_attempt_at":  at.UTC(),
			"last_error":       "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *outboxRepo) Stats(dbc dbctx.Context) (OutboxStats, error) {
	var stats OutboxStats
	db := dbc.DB(r.db)
	if err := db.Model(&events.OutboxRecord{}).
		Where("dispatched_at IS NULL AND dead_lettered_at IS NULL").
		Count(&stats.Pending).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&events.OutboxRecord{}).
		Where("dispatched_at IS NOT NULL").
		Count(&stats.Dispatched).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&events.OutboxRecord{}).
		Where("dead_lettered_at IS NOT NULL AND dispatched_at IS NULL").
		Count(&stats.DeadLettered).Error; err != nil {
		return stats, err
	}
	if stats.Pending > 0 {
		var oldest []*events.OutboxRecord
		if err := db.Where("dispatched_at IS NULL AND dead_lettered_at IS NULL").
			Order("created_at ASC").
			Limit(1).
			Find(&oldest).Error; err != nil {
			return stats, err
		}
		if len(oldest) == 1 {
			t := oldest[0].CreatedAt.UTC()
			stats.OldestPending = &t
		}
	}
	return stats, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
