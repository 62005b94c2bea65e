package requirement

import (
	"strings"
	"time"

	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusIgnored    Status = "ignored"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusIgnored, StatusCancelled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

const (
	SourceManual       = "manual"
	SourceConversation = "conversation"
	SourceCustomer     = "customer"
	SourceAIDetected   = "ai_detected"
)

var communicationCategories = map[string]bool{
	"technical": true,
	"feature":   true,
	"bug":       true,
}

type State struct {
	ConversationID string
	CustomerID     string
	Content        string
	Category       string
	Status         Status
	Priority       Priority
	Source         string
	Confidence     float64
	Tags           []string
	Annotations    map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Requirement struct {
	events.Root
	state State
}

type NewInput struct {
	ID             string
	ConversationID string
	CustomerID     string
	Content        string
	Category       string
	Priority       Priority
	Source         string
	Confidence     float64
	Tags           []string
}

func New(in NewInput, at time.Time) (*Requirement, error) {
	const op = "requirement.new"
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, domainagg.Invalid(op, "customer id is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, domainagg.Invalid(op, "content is required")
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, domainagg.Invalid(op, "confidence %.2f outside [0,1]", in.Confidence)
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, domainagg.Invalid(op, "unknown priority %q", priority)
	}
	source := in.Source
	if source == "" {
		source = SourceManual
	}
	at = at.UTC()
	r := &Requirement{
		Root: events.NewRoot(events.AggregateRequirement, in.ID),
		state: State{
			ConversationID: in.ConversationID,
			CustomerID:     in.CustomerID,
			Content:        in.Content,
			Category:       strings.ToLower(strings.TrimSpace(in.Category)),
			Status:         StatusPending,
			Priority:       priority,
			Source:         source,
			Confidence:     in.Confidence,
			Tags:           dedupe(in.Tags),
			CreatedAt:      at,
			UpdatedAt:      at,
		},
	}
	r.Record(events.RequirementCreated, events.RequirementCreatedPayload{
		RequirementID:  r.ID(),
		ConversationID: events.OptionalID(in.ConversationID),
		CustomerID:     in.CustomerID,
		Content:        in.Content,
		Category:       r.state.Category,
		Priority:       string(priority),
		Source:         source,
		Confidence:     in.Confidence,
	}, at)
	return r, nil
}

// Rehydrate copies s; later commands never write through to the caller's
// tags or annotations.
func Rehydrate(id string, version int, s State) *Requirement {
	return &Requirement{Root: events.RehydrateRoot(events.AggregateRequirement, id, version), state: cloneState(s)}
}

func (r *Requirement) Snapshot() State { return cloneState(r.state) }

func cloneState(in State) State {
	s := in
	s.Tags = append([]string(nil), in.Tags...)
	if in.Annotations != nil {
		s.Annotations = make(map[string]string, len(in.Annotations))
		for k, v := range in.Annotations {
			s.Annotations[k] = v
		}
	}
	return s
}

func (r *Requirement) Status() Status         { return r.state.Status }
func (r *Requirement) Priority() Priority     { return r.state.Priority }
func (r *Requirement) Content() string        { return r.state.Content }
func (r *Requirement) ConversationID() string { return r.state.ConversationID }
func (r *Requirement) CustomerID() string     { return r.state.CustomerID }
func (r *Requirement) Source() string         { return r.state.Source }
func (r *Requirement) Confidence() float64    { return r.state.Confidence }
func (r *Requirement) Tags() []string         { return append([]string(nil), r.state.Tags...) }

func (r *Requirement) UpdateStatus(to Status, at time.Time) error {
	const op = "requirement.update_status"
	if !to.Valid() {
		return domainagg.Invalid(op, "unknown status %q", to)
	}
	if r.state.Status == StatusResolved {
		return domainagg.InvalidState(op, "requirement %s is resolved", r.ID())
	}
	if r.state.Status == to {
		return nil
	}
	at = at.UTC()
	from := r.state.Status
	r.state.Status = to
	r.state.UpdatedAt = at
	r.Record(events.RequirementStatusChanged, events.RequirementStatusChangedPayload{
		RequirementID: r.ID(),
		From:          string(from),
		To:            string(to),
	}, at)
	return nil
}

func (r *Requirement) ChangePriority(to Priority, at time.Time) error {
	const op = "requirement.change_priority"
	if !to.Valid() {
		return domainagg.Invalid(op, "unknown priority %q", to)
	}
	if r.state.Status == StatusResolved {
		return domainagg.InvalidState(op, "requirement %s is resolved", r.ID())
	}
	if r.state.Priority == to {
		return nil
	}
	at = at.UTC()
	from := r.state.Priority
	r.state.Priority = to
	r.state.UpdatedAt = at
	r.Record(events.RequirementPriorityChanged, events.RequirementPriorityChangedPayload{
		RequirementID: r.ID(),
		From:          string(from),
		To:            string(to),
	}, at)
	return nil
}

func (r *Requirement) UpdateContent(content string, at time.Time) error {
	const op = "requirement.update_content"
	if strings.TrimSpace(content) == "" {
		return domainagg.Invalid(op, "content is required")
	}
	if r.state.Status == StatusResolved {
		return domainagg.InvalidState(op, "requirement %s is resolved", r.ID())
	}
	r.state.Content = content
	r.state.UpdatedAt = at.UTC()
	return nil
}

func (r *Requirement) AddTag(tag string, at time.Time) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	for _, existing := range r.state.Tags {
		if existing == tag {
			return
		}
	}
	r.state.Tags = append(r.state.Tags, tag)
	r.state.UpdatedAt = at.UTC()
}

func (r *Requirement) RemoveTag(tag string, at time.Time) {
	out := make([]string, 0, len(r.state.Tags))
	for _, existing := range r.state.Tags {
		if existing != tag {
			out = append(out, existing)
		}
	}
	r.state.Tags = out
	r.state.UpdatedAt = at.UTC()
}

func (r *Requirement) Annotate(key, value string, at time.Time) {
	if r.state.Annotations == nil {
		r.state.Annotations = map[string]string{}
	}
	r.state.Annotations[key] = value
	r.state.UpdatedAt = at.UTC()
}

// ShouldAutoCreateTask reports whether a follow-up task is opened without
// agent involvement: high or urgent priority, or raised by the customer.
func (r *Requirement) ShouldAutoCreateTask() bool {
	return ShouldAutoCreateTask(r.state.Priority, r.state.Source)
}

func ShouldAutoCreateTask(p Priority, source string) bool {
	return p == PriorityHigh || p == PriorityUrgent || IsCustomerOriginated(source)
}

// NeedsCustomerCommunication reports whether a conversation should be opened
// with the customer. Requirements already tied to a conversation never do.
func (r *Requirement) NeedsCustomerCommunication() bool {
	return NeedsCustomerCommunication(r.state.ConversationID, r.state.Priority, r.state.Category)
}

func NeedsCustomerCommunication(conversationID string, p Priority, category string) bool {
	if conversationID != "" {
		return false
	}
	return p == PriorityUrgent || p == PriorityHigh || communicationCategories[category]
}

func IsCustomerOriginated(source string) bool {
	return source == SourceConversation || source == SourceCustomer
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
