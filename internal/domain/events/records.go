package events

import (
	"time"

	"gorm.io/datatypes"
)

// LogRecord is an append-only row of the domain event log.
type LogRecord struct {
	EventID       string         `gorm:"column:event_id;primaryKey" json:"event_id"`
	AggregateID   string         `gorm:"column:aggregate_id;not null;index:idx_domain_events_aggregate,priority:1" json:"aggregate_id"`
	AggregateType string         `gorm:"column:aggregate_type;not null" json:"aggregate_type"`
	EventType     string         `gorm:"column:event_type;not null;index" json:"event_type"`
	Version       int            `gorm:"column:version;not null;index:idx_domain_events_aggregate,priority:2" json:"version"`
	Seq           int            `gorm:"column:seq;not null;index:idx_domain_events_aggregate,priority:3" json:"seq"`
	Payload       datatypes.JSON `gorm:"column:payload" json:"payload"`
	OccurredAt    time.Time      `gorm:"column:occurred_at;not null" json:"occurred_at"`
}

func (LogRecord) TableName() string { return "domain_events" }

// OutboxRecord tracks delivery of one event to in-process handlers.
// Payload holds the full event envelope.
type OutboxRecord struct {
	EventID        string         `gorm:"column:event_id;primaryKey" json:"event_id"`
	AggregateID    string         `gorm:"column:aggregate_id;not null;index" json:"aggregate_id"`
	AggregateType  string         `gorm:"column:aggregate_type;not null" json:"aggregate_type"`
	EventType      string         `gorm:"column:event_type;not null;index" json:"event_type"`
	Version        int            `gorm:"column:version;not null" json:"version"`
	Seq            int            `gorm:"column:seq;not null" json:"seq"`
	Payload        datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"created_at"`
	DispatchedAt   *time.Time     `gorm:"column:dispatched_at;index" json:"dispatched_at,omitempty"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	NextAttemptAt  time.Time      `gorm:"column:next_attempt_at;not null;index" json:"next_attempt_at"`
	LastError      string         `gorm:"column:last_error" json:"last_error,omitempty"`
	DeadLetteredAt *time.Time     `gorm:"column:dead_lettered_at;index" json:"dead_lettered_at,omitempty"`
}

func (OutboxRecord) TableName() string { return "outbox_events" }

// Event decodes the stored envelope.
func (r *OutboxRecord) Event() (DomainEvent, error) {
	return Unmarshal(r.Payload)
}
