package task

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type Record struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	Version        int            `gorm:"column:version;not null" json:"version"`
	Title          string         `gorm:"column:title;not null" json:"title"`
	Description    string         `gorm:"column:description" json:"description,omitempty"`
	ConversationID string         `gorm:"column:conversation_id;index" json:"conversation_id,omitempty"`
	RequirementID  string         `gorm:"column:requirement_id;index" json:"requirement_id,omitempty"`
	AssigneeID     string         `gorm:"column:assignee_id;index" json:"assignee_id,omitempty"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Priority       string         `gorm:"column:priority;not null" json:"priority"`
	Progress       int            `gorm:"column:progress;not null;default:0" json:"progress"`
	DueDate        *time.Time     `gorm:"column:due_date;index" json:"due_date,omitempty"`
	QualityScore   *float64       `gorm:"column:quality_score" json:"quality_score,omitempty"`
	CancelReason   string         `gorm:"column:cancel_reason" json:"cancel_reason,omitempty"`
	Metadata       datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
	StartedAt      *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Record) TableName() string { return "tasks" }

func ToRecord(t *Task, version int) (*Record, error) {
	s := t.Snapshot()
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return &Record{
		ID:             t.ID(),
		Version:        version,
		Title:          s.Title,
		Description:    s.Description,
		ConversationID: s.ConversationID,
		RequirementID:  s.RequirementID,
		AssigneeID:     s.AssigneeID,
		Status:         string(s.Status),
		Priority:       string(s.Priority),
		Progress:       s.Progress,
		DueDate:        s.DueDate,
		QualityScore:   s.QualityScore,
		CancelReason:   s.CancelReason,
		Metadata:       datatypes.JSON(meta),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
	}, nil
}

func FromRecord(rec *Record) (*Task, error) {
	s := State{
		Title:          rec.Title,
		Description:    rec.Description,
		ConversationID: rec.ConversationID,
		RequirementID:  rec.RequirementID,
		AssigneeID:     rec.AssigneeID,
		Status:         Status(rec.Status),
		Priority:       Priority(rec.Priority),
		Progress:       rec.Progress,
		DueDate:        utc(rec.DueDate),
		QualityScore:   rec.QualityScore,
		CancelReason:   rec.CancelReason,
		CreatedAt:      rec.CreatedAt.UTC(),
		UpdatedAt:      rec.UpdatedAt.UTC(),
		StartedAt:      utc(rec.StartedAt),
		CompletedAt:    utc(rec.CompletedAt),
	}
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of task %s: %w", rec.ID, err)
		}
	}
	return Rehydrate(rec.ID, rec.Version, s), nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
