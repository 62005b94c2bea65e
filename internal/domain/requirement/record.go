package requirement

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type Record struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	Version        int            `gorm:"column:version;not null" json:"version"`
	ConversationID string         `gorm:"column:conversation_id;index" json:"conversation_id,omitempty"`
	CustomerID     string         `gorm:"column:customer_id;not null;index" json:"customer_id"`
	Content        string         `gorm:"column:content;not null" json:"content"`
	Category       string         `gorm:"column:category" json:"category,omitempty"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Priority       string         `gorm:"column:priority;not null" json:"priority"`
	Source         string         `gorm:"column:source;not null" json:"source"`
	Confidence     float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`
	Tags           datatypes.JSON `gorm:"column:tags" json:"tags"`
	Annotations    datatypes.JSON `gorm:"column:annotations" json:"annotations"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
}

func (Record) TableName() string { return "requirements" }

func ToRecord(r *Requirement, version int) (*Record, error) {
	s := r.Snapshot()
	tags, err := json.Marshal(s.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	ann, err := json.Marshal(s.Annotations)
	if err != nil {
		return nil, fmt.Errorf("encode annotations: %w", err)
	}
	return &Record{
		ID:             r.ID(),
		Version:        version,
		ConversationID: s.ConversationID,
		CustomerID:     s.CustomerID,
		Content:        s.Content,
		Category:       s.Category,
		Status:         string(s.Status),
		Priority:       string(s.Priority),
		Source:         s.Source,
		Confidence:     s.Confidence,
		Tags:           datatypes.JSON(tags),
		Annotations:    datatypes.JSON(ann),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}, nil
}

func FromRecord(rec *Record) (*Requirement, error) {
	s := State{
		ConversationID: rec.ConversationID,
		CustomerID:     rec.CustomerID,
		Content:        rec.Content,
		Category:       rec.Category,
		Status:         Status(rec.Status),
		Priority:       Priority(rec.Priority),
		Source:         rec.Source,
		Confidence:     rec.Confidence,
		CreatedAt:      rec.CreatedAt.UTC(),
		UpdatedAt:      rec.UpdatedAt.UTC(),
	}
	if len(rec.Tags) > 0 {
		if err := json.Unmarshal(rec.Tags, &s.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of requirement %s: %w", rec.ID, err)
		}
	}
	if len(rec.Annotations) > 0 {
		if err := json.Unmarshal(rec.Annotations, &s.Annotations); err != nil {
			return nil, fmt.Errorf("decode annotations of requirement %s: %w", rec.ID, err)
		}
	}
	return Rehydrate(rec.ID, rec.Version, s), nil
}
