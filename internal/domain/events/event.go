package events

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event. The string value is the wire and storage format.
type Type string

const (
	ConversationCreated       Type = "ConversationCreated"
	MessageSent               Type = "MessageSent"
	ConversationAssigned      Type = "ConversationAssigned"
	ConversationStatusChanged Type = "ConversationStatusChanged"
	ConversationClosed        Type = "ConversationClosed"
	ConversationReopened      Type = "ConversationReopened"
	SLAViolated               Type = "SLAViolated"
	ConversationReadyToClose  Type = "ConversationReadyToClose"

	TaskCreated    Type = "TaskCreated"
	TaskStarted    Type = "TaskStarted"
	TaskCompleted  Type = "TaskCompleted"
	TaskCancelled  Type = "TaskCancelled"
	TaskReassigned Type = "TaskReassigned"

	RequirementCreated         Type = "RequirementCreated"
	RequirementStatusChanged   Type = "RequirementStatusChanged"
	RequirementPriorityChanged Type = "RequirementPriorityChanged"
)

var knownTypes = map[Type]AggregateType{
	ConversationCreated:        AggregateConversation,
	MessageSent:                AggregateConversation,
	ConversationAssigned:       AggregateConversation,
	ConversationStatusChanged:  AggregateConversation,
	ConversationClosed:         AggregateConversation,
	ConversationReopened:       AggregateConversation,
	SLAViolated:                AggregateConversation,
	ConversationReadyToClose:   AggregateConversation,
	TaskCreated:                AggregateTask,
	TaskStarted:                AggregateTask,
	TaskCompleted:              AggregateTask,
	TaskCancelled:              AggregateTask,
	TaskReassigned:             AggregateTask,
	RequirementCreated:         AggregateRequirement,
	RequirementStatusChanged:   AggregateRequirement,
	RequirementPriorityChanged: AggregateRequirement,
}

func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Owner returns the aggregate type that emits t.
func (t Type) Owner() AggregateType { return knownTypes[t] }

// AllTypes lists every registered event type in name order.
func AllTypes() []Type {
	out := make([]Type, 0, len(knownTypes))
	for t := range knownTypes {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

type AggregateType string

const (
	AggregateConversation AggregateType = "conversation"
	AggregateTask         AggregateType = "task"
	AggregateRequirement  AggregateType = "requirement"
)

// DomainEvent is an immutable record of something that happened to one aggregate.
// Payload holds the JSON encoding of one of the typed payload structs.
type DomainEvent struct {
	ID            string          `json:"eventId"`
	Type          Type            `json:"eventType"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType AggregateType   `json:"aggregateType"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload"`
}

// New builds an event with a fresh id. Payloads are plain structs and always encode.
func New(aggType AggregateType, aggregateID string, t Type, version int, payload any, at time.Time) DomainEvent {
	raw, _ := json.Marshal(payload)
	return DomainEvent{
		ID:            uuid.NewString(),
		Type:          t,
		AggregateID:   aggregateID,
		AggregateType: aggType,
		Version:       version,
		OccurredAt:    at.UTC(),
		Payload:       raw,
	}
}

// Decode unmarshals the payload into dst.
func (e DomainEvent) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s (%s) has empty payload", e.ID, e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Marshal encodes the full envelope as stored in the outbox.
func Marshal(e DomainEvent) ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(raw []byte) (DomainEvent, error) {
	var e DomainEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return DomainEvent{}, fmt.Errorf("decode event envelope: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return DomainEvent{}, fmt.Errorf("event envelope missing id or type")
	}
	return e, nil
}
