package events

import "time"

type ConversationCreatedPayload struct {
	ConversationID string     `json:"conversationId"`
	CustomerID     string     `json:"customerId"`
	Channel        string     `json:"channel"`
	Priority       string     `json:"priority,omitempty"`
	AgentID        string     `json:"agentId,omitempty"`
	SLADeadline    *time.Time `json:"slaDeadline,omitempty"`
}

type MessageSentPayload struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	SenderType     string    `json:"senderType"`
	Content        string    `json:"content"`
	ContentType    string    `json:"contentType"`
	SentAt         time.Time `json:"sentAt"`
}

type ConversationAssignedPayload struct {
	ConversationID  string `json:"conversationId"`
	AgentID         string `json:"agentId"`
	PreviousAgentID string `json:"previousAgentId,omitempty"`
	AssignedBy      string `json:"assignedBy,omitempty"`
	Reason          string `json:"reason"`
	Channel         string `json:"channel"`
	Priority        string `json:"priority,omitempty"`
}

type ConversationStatusChangedPayload struct {
	ConversationID string `json:"conversationId"`
	From           string `json:"from"`
	To             string `json:"to"`
}

type ConversationClosedPayload struct {
	ConversationID string    `json:"conversationId"`
	Resolution     string    `json:"resolution"`
	ClosedAt       time.Time `json:"closedAt"`
}

type ConversationReopenedPayload struct {
	ConversationID string    `json:"conversationId"`
	Reason         string    `json:"reason"`
	ReopenedAt     time.Time `json:"reopenedAt"`
}

type SLAViolatedPayload struct {
	ConversationID string    `json:"conversationId"`
	Deadline       time.Time `json:"deadline"`
	DetectedAt     time.Time `json:"detectedAt"`
}

// ConversationReadyToClosePayload is carried by a bus-only event; it is never persisted.
type ConversationReadyToClosePayload struct {
	ConversationID      string `json:"conversationId"`
	Reason              string `json:"reason"`
	CompletedTasksCount int    `json:"completedTasksCount"`
}

type TaskCreatedPayload struct {
	TaskID         string     `json:"taskId"`
	Title          string     `json:"title"`
	ConversationID *string    `json:"conversationId"`
	RequirementID  *string    `json:"requirementId"`
	AssigneeID     string     `json:"assigneeId,omitempty"`
	Priority       string     `json:"priority"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
}

type TaskStartedPayload struct {
	TaskID         string    `json:"taskId"`
	ConversationID *string   `json:"conversationId"`
	StartedAt      time.Time `json:"startedAt"`
	Automatic      bool      `json:"automatic,omitempty"`
}

type TaskCompletedPayload struct {
	TaskID          string    `json:"taskId"`
	ConversationID  *string   `json:"conversationId"`
	CompletedAt     time.Time `json:"completedAt"`
	DurationSeconds int64     `json:"durationSeconds"`
	QualityScore    *float64  `json:"qualityScore,omitempty"`
	CompletedBy     string    `json:"completedBy,omitempty"`
}

type TaskCancelledPayload struct {
	TaskID         string    `json:"taskId"`
	ConversationID *string   `json:"conversationId"`
	Reason         string    `json:"reason"`
	CancelledAt    time.Time `json:"cancelledAt"`
}

type TaskReassignedPayload struct {
	TaskID           string `json:"taskId"`
	PreviousAssignee string `json:"previousAssignee,omitempty"`
	NewAssignee      string `json:"newAssignee"`
}

type RequirementCreatedPayload struct {
	RequirementID  string  `json:"requirementId"`
	ConversationID *string `json:"conversationId"`
	CustomerID     string  `json:"customerId"`
	Content        string  `json:"content"`
	Category       string  `json:"category,omitempty"`
	Priority       string  `json:"priority"`
	Source         string  `json:"source"`
	Confidence     float64 `json:"confidence"`
}

type RequirementStatusChangedPayload struct {
	RequirementID string `json:"requirementId"`
	From          string `json:"from"`
	To            string `json:"to"`
}

type RequirementPriorityChangedPayload struct {
	RequirementID string `json:"requirementId"`
	From          string `json:"from"`
	To            string `json:"to"`
}

// OptionalID maps the empty string to a null reference in payloads.
func OptionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
