package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Record is the conversations table row.
type Record struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	Version     int            `gorm:"column:version;not null" json:"version"`
	CustomerID  string         `gorm:"column:customer_id;not null;index" json:"customer_id"`
	AgentID     string         `gorm:"column:agent_id;index" json:"agent_id,omitempty"`
	Channel     string         `gorm:"column:channel;not null" json:"channel"`
	Priority    string         `gorm:"column:priority" json:"priority,omitempty"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	SLAStatus   string         `gorm:"column:sla_status;not null" json:"sla_status"`
	SLADeadline *time.Time     `gorm:"column:sla_deadline;index" json:"sla_deadline,omitempty"`
	Resolution  string         `gorm:"column:resolution" json:"resolution,omitempty"`
	Messages    datatypes.JSON `gorm:"column:messages" json:"messages"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
	ClosedAt    *time.Time     `gorm:"column:closed_at" json:"closed_at,omitempty"`
}

func (Record) TableName() string { return "conversations" }

// ToRecord renders the conversation as the row it will have at version.
func ToRecord(c *Conversation, version int) (*Record, error) {
	s := c.Snapshot()
	msgs, err := json.Marshal(s.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return &Record{
		ID:          c.ID(),
		Version:     version,
		CustomerID:  s.CustomerID,
		AgentID:     s.AgentID,
		Channel:     s.Channel,
		Priority:    s.Priority,
		Status:      string(s.Status),
		SLAStatus:   string(s.SLAStatus),
		SLADeadline: s.SLADeadline,
		Resolution:  s.Resolution,
		Messages:    datatypes.JSON(msgs),
		Metadata:    datatypes.JSON(meta),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		ClosedAt:    s.ClosedAt,
	}, nil
}

func FromRecord(rec *Record, opts ...Option) (*Conversation, error) {
	s := State{
		CustomerID:  rec.CustomerID,
		AgentID:     rec.AgentID,
		Channel:     rec.Channel,
		Priority:    rec.Priority,
		Status:      Status(rec.Status),
		SLAStatus:   SLAStatus(rec.SLAStatus),
		SLADeadline: utcPtr(rec.SLADeadline),
		Resolution:  rec.Resolution,
		CreatedAt:   rec.CreatedAt.UTC(),
		UpdatedAt:   rec.UpdatedAt.UTC(),
		ClosedAt:    utcPtr(rec.ClosedAt),
	}
	if len(rec.Messages) > 0 {
		if err := json.Unmarshal(rec.Messages, &s.Messages); err != nil {
			return nil, fmt.Errorf("decode messages of conversation %s: %w", rec.ID, err)
		}
	}
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of conversation %s: %w", rec.ID, err)
		}
	}
	return Rehydrate(rec.ID, rec.Version, s, opts...), nil
}
