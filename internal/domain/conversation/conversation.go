package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
)

type Status string

const (
	StatusOpen    Status = "open"
	StatusPending Status = "pending"
	StatusClosed  Status = "closed"
)

func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusPending || s == StatusClosed
}

const (
	SenderCustomer = "customer"
	SenderAgent    = "agent"
	SenderSystem   = "system"
)

type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	SenderType  string    `json:"senderType"`
	Content     string    `json:"content"`
	ContentType string    `json:"contentType"`
	SentAt      time.Time `json:"sentAt"`
}

// State is the persisted shape of a conversation. Repositories map it to rows.
type State struct {
	CustomerID  string
	AgentID     string
	Channel     string
	Priority    string
	Status      Status
	SLAStatus   SLAStatus
	SLADeadline *time.Time
	Resolution  string
	Messages    []Message
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}

// Conversation is the aggregate root for a customer conversation.
type Conversation struct {
	events.Root
	state State
	sla   SLAEvaluator
}

type Option func(*Conversation)

func WithSLAEvaluator(e SLAEvaluator) Option {
	return func(c *Conversation) { c.sla = e }
}

type NewInput struct {
	ID          string
	CustomerID  string
	AgentID     string
	Channel     string
	Priority    string
	SLADeadline *time.Time
	Metadata    map[string]any
}

func New(in NewInput, at time.Time, opts ...Option) (*Conversation, error) {
	const op = "conversation.new"
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, domainagg.Invalid(op, "customer id is required")
	}
	if strings.TrimSpace(in.Channel) == "" {
		return nil, domainagg.Invalid(op, "channel is required")
	}
	at = at.UTC()
	c := &Conversation{
		Root: events.NewRoot(events.AggregateConversation, in.ID),
		state: State{
			CustomerID:  in.CustomerID,
			AgentID:     in.AgentID,
			Channel:     in.Channel,
			Priority:    in.Priority,
			Status:      StatusOpen,
			SLAStatus:   SLANormal,
			SLADeadline: utcPtr(in.SLADeadline),
			Metadata:    copyMap(in.Metadata),
			CreatedAt:   at,
			UpdatedAt:   at,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Record(events.ConversationCreated, events.ConversationCreatedPayload{
		ConversationID: c.ID(),
		CustomerID:     in.CustomerID,
		Channel:        in.Channel,
		Priority:       in.Priority,
		AgentID:        in.AgentID,
		SLADeadline:    c.state.SLADeadline,
	}, at)
	c.evaluateSLA(at)
	return c, nil
}

// Rehydrate rebuilds a conversation from storage without emitting events.
func Rehydrate(id string, version int, s State, opts ...Option) *Conversation {
	if s.SLAStatus == "" {
		s.SLAStatus = SLANormal
	}
	c := &Conversation{Root: events.RehydrateRoot(events.AggregateConversation, id, version), state: s}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the current state for persistence.
func (c *Conversation) Snapshot() State {
	s := c.state
	s.Messages = append([]Message(nil), c.state.Messages...)
	s.Metadata = copyMap(c.state.Metadata)
	return s
}

func (c *Conversation) Status() Status          { return c.state.Status }
func (c *Conversation) CustomerID() string      { return c.state.CustomerID }
func (c *Conversation) AgentID() string         { return c.state.AgentID }
func (c *Conversation) Channel() string         { return c.state.Channel }
func (c *Conversation) Priority() string        { return c.state.Priority }
func (c *Conversation) SLAStatus() SLAStatus    { return c.state.SLAStatus }
func (c *Conversation) SLADeadline() *time.Time { return c.state.SLADeadline }
func (c *Conversation) Resolution() string      { return c.state.Resolution }
func (c *Conversation) ClosedAt() *time.Time    { return c.state.ClosedAt }
func (c *Conversation) Messages() []Message     { return append([]Message(nil), c.state.Messages...) }
func (c *Conversation) IsClosed() bool          { return c.state.Status == StatusClosed }

// IsParticipant reports whether senderID may post in this conversation.
func (c *Conversation) IsParticipant(senderID, senderType string) bool {
	switch senderType {
	case SenderSystem:
		return true
	case SenderCustomer:
		return senderID == c.state.CustomerID
	case SenderAgent:
		return senderID != "" && senderID == c.state.AgentID
	default:
		return senderID == c.state.CustomerID || (senderID != "" && senderID == c.state.AgentID)
	}
}

type MessageInput struct {
	SenderID    string
	SenderType  string
	Content     string
	ContentType string
}

func (c *Conversation) SendMessage(in MessageInput, at time.Time) (Message, error) {
	const op = "conversation.send_message"
	if c.IsClosed() {
		return Message{}, domainagg.InvalidState(op, "conversation %s is closed", c.ID())
	}
	if strings.TrimSpace(in.Content) == "" {
		return Message{}, domainagg.Invalid(op, "message content is required")
	}
	if !c.IsParticipant(in.SenderID, in.SenderType) {
		return Message{}, domainagg.Invalid(op, "sender %s is not a participant of conversation %s", in.SenderID, c.ID())
	}
	at = at.UTC()
	contentType := in.ContentType
	if contentType == "" {
		contentType = "text"
	}
	msg := Message{
		ID:          uuid.NewString(),
		SenderID:    in.SenderID,
		SenderType:  in.SenderType,
		Content:     in.Content,
		ContentType: contentType,
		SentAt:      at,
	}
	c.state.Messages = append(c.state.Messages, msg)
	c.state.UpdatedAt = at
	c.Record(events.MessageSent, events.MessageSentPayload{
		ConversationID: c.ID(),
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		SenderType:     msg.SenderType,
		Content:        msg.Content,
		ContentType:    msg.ContentType,
		SentAt:         at,
	}, at)
	c.evaluateSLA(at)
	return msg, nil
}

type AssignOptions struct {
	AssignedBy string
	Reason     string
}

func (c *Conversation) AssignAgent(agentID string, opts AssignOptions, at time.Time) error {
	const op = "conversation.assign_agent"
	if c.IsClosed() {
		return domainagg.InvalidState(op, "conversation %s is closed", c.ID())
	}
	if strings.TrimSpace(agentID) == "" {
		return domainagg.Invalid(op, "agent id is required")
	}
	at = at.UTC()
	previous := c.state.AgentID
	reason := opts.Reason
	if reason == "" {
		reason = "manual"
		if previous != "" {
			reason = "reassignment"
		}
	}
	c.state.AgentID = agentID
	c.state.UpdatedAt = at
	c.Record(events.ConversationAssigned, events.ConversationAssignedPayload{
		ConversationID:  c.ID(),
		AgentID:         agentID,
		PreviousAgentID: previous,
		AssignedBy:      opts.AssignedBy,
		Reason:          reason,
		Channel:         c.state.Channel,
		Priority:        c.state.Priority,
	}, at)
	c.evaluateSLA(at)
	return nil
}

// UpdateStatus moves between open and pending. Closing goes through Close and
// leaving closed goes through Reopen.
func (c *Conversation) UpdateStatus(to Status, at time.Time) error {
	const op = "conversation.update_status"
	if !to.Valid() {
		return domainagg.Invalid(op, "unknown status %q", to)
	}
	if to == StatusClosed {
		return c.Close("Closed via status update", at)
	}
	if c.IsClosed() {
		return domainagg.InvalidState(op, "conversation %s is closed; reopen it first", c.ID())
	}
	if c.state.Status == to {
		return nil
	}
	at = at.UTC()
	from := c.state.Status
	c.state.Status = to
	c.state.UpdatedAt = at
	c.Record(events.ConversationStatusChanged, events.ConversationStatusChangedPayload{
		ConversationID: c.ID(),
		From:           string(from),
		To:             string(to),
	}, at)
	c.evaluateSLA(at)
	return nil
}

func (c *Conversation) Close(resolution string, at time.Time) error {
	const op = "conversation.close"
	if c.IsClosed() {
		return domainagg.InvalidState(op, "conversation %s is already closed", c.ID())
	}
	if strings.TrimSpace(resolution) == "" {
		return domainagg.Invalid(op, "resolution is required")
	}
	at = at.UTC()
	c.evaluateSLA(at)
	c.state.Status = StatusClosed
	c.state.Resolution = resolution
	c.state.ClosedAt = &at
	c.state.UpdatedAt = at
	c.Record(events.ConversationClosed, events.ConversationClosedPayload{
		ConversationID: c.ID(),
		Resolution:     resolution,
		ClosedAt:       at,
	}, at)
	return nil
}

func (c *Conversation) Reopen(reason string, at time.Time) error {
	const op = "conversation.reopen"
	if !c.IsClosed() {
		return domainagg.InvalidState(op, "conversation %s is not closed", c.ID())
	}
	at = at.UTC()
	c.state.Status = StatusOpen
	c.state.ClosedAt = nil
	c.state.Resolution = ""
	c.state.UpdatedAt = at
	c.Record(events.ConversationReopened, events.ConversationReopenedPayload{
		ConversationID: c.ID(),
		Reason:         reason,
		ReopenedAt:     at,
	}, at)
	c.evaluateSLA(at)
	return nil
}

// SetSLADeadline installs a new deadline and restarts SLA tracking against it.
func (c *Conversation) SetSLADeadline(deadline time.Time, at time.Time) error {
	const op = "conversation.set_sla_deadline"
	if c.IsClosed() {
		return domainagg.InvalidState(op, "conversation %s is closed", c.ID())
	}
	d := deadline.UTC()
	c.state.SLADeadline = &d
	c.state.SLAStatus = SLANormal
	c.state.UpdatedAt = at.UTC()
	c.evaluateSLA(at.UTC())
	return nil
}

// CheckSLAStatus re-evaluates the SLA against now and returns the resulting status.
func (c *Conversation) CheckSLAStatus(now time.Time) SLAStatus {
	if !c.IsClosed() {
		c.evaluateSLA(now.UTC())
	}
	return c.state.SLAStatus
}

// evaluateSLA only ever worsens the status for the current deadline and emits
// SLAViolated on the transition into violated.
func (c *Conversation) evaluateSLA(now time.Time) {
	if c.state.SLADeadline == nil {
		return
	}
	next := c.sla.Evaluate(*c.state.SLADeadline, now)
	current := c.state.SLAStatus
	if next.rank() <= current.rank() {
		return
	}
	c.state.SLAStatus = next
	if next == SLAViolated {
		c.Record(events.SLAViolated, events.SLAViolatedPayload{
			ConversationID: c.ID(),
			Deadline:       *c.state.SLADeadline,
			DetectedAt:     now,
		}, now)
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
