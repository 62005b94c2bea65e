package task

import (
	"strings"
	"time"

	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

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

// State is the persisted shape of a task.
type State struct {
	Title          string
	Description    string
	ConversationID string
	RequirementID  string
	AssigneeID     string
	Status         Status
	Priority       Priority
	Progress       int
	DueDate        *time.Time
	QualityScore   *float64
	CancelReason   string
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

type Task struct {
	events.Root
	state State
}

type NewInput struct {
	ID             string
	Title          string
	Description    string
	ConversationID string
	RequirementID  string
	AssigneeID     string
	Priority       Priority
	DueDate        *time.Time
	Metadata       map[string]any
}

func New(in NewInput, at time.Time) (*Task, error) {
	const op = "task.new"
	if strings.TrimSpace(in.Title) == "" {
		return nil, domainagg.Invalid(op, "title is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, domainagg.Invalid(op, "unknown priority %q", priority)
	}
	at = at.UTC()
	var due *time.Time
	if in.DueDate != nil {
		d := in.DueDate.UTC()
		due = &d
	}
	t := &Task{
		Root: events.NewRoot(events.AggregateTask, in.ID),
		state: State{
			Title:          in.Title,
			Description:    in.Description,
			ConversationID: in.ConversationID,
			RequirementID:  in.RequirementID,
			AssigneeID:     in.AssigneeID,
			Status:         StatusTodo,
			Priority:       priority,
			DueDate:        due,
			Metadata:       copyMap(in.Metadata),
			CreatedAt:      at,
			UpdatedAt:      at,
		},
	}
	t.Record(events.TaskCreated, events.TaskCreatedPayload{
		TaskID:         t.ID(),
		Title:          in.Title,
		ConversationID: events.OptionalID(in.ConversationID),
		RequirementID:  events.OptionalID(in.RequirementID),
		AssigneeID:     in.AssigneeID,
		Priority:       string(priority),
		DueDate:        due,
	}, at)
	return t, nil
}

func Rehydrate(id string, version int, s State) *Task {
	return &Task{Root: events.RehydrateRoot(events.AggregateTask, id, version), state: s}
}

func (t *Task) Snapshot() State {
	s := t.state
	s.Metadata = copyMap(t.state.Metadata)
	return s
}

func (t *Task) Status() Status           { return t.state.Status }
func (t *Task) Title() string            { return t.state.Title }
func (t *Task) ConversationID() string   { return t.state.ConversationID }
func (t *Task) RequirementID() string    { return t.state.RequirementID }
func (t *Task) AssigneeID() string       { return t.state.AssigneeID }
func (t *Task) Priority() Priority       { return t.state.Priority }
func (t *Task) Progress() int            { return t.state.Progress }
func (t *Task) QualityScore() *float64   { return t.state.QualityScore }
func (t *Task) StartedAt() *time.Time    { return t.state.StartedAt }
func (t *Task) CompletedAt() *time.Time  { return t.state.CompletedAt }
func (t *Task) DueDate() *time.Time      { return t.state.DueDate }
func (t *Task) Metadata() map[string]any { return copyMap(t.state.Metadata) }
func (t *Task) IsCompleted() bool        { return t.state.Status == StatusCompleted }

func (t *Task) IsTerminal() bool {
	return t.state.Status == StatusCompleted || t.state.Status == StatusCancelled
}

// Start moves a todo task into progress. Starting an in-progress task is a no-op.
func (t *Task) Start(at time.Time) error {
	const op = "task.start"
	if t.IsTerminal() {
		return domainagg.InvalidState(op, "task %s is %s", t.ID(), t.state.Status)
	}
	if t.state.Status == StatusInProgress {
		return nil
	}
	t.start(at.UTC(), false)
	return nil
}

func (t *Task) start(at time.Time, automatic bool) {
	t.state.Status = StatusInProgress
	t.state.StartedAt = &at
	t.state.UpdatedAt = at
	t.Record(events.TaskStarted, events.TaskStartedPayload{
		TaskID:         t.ID(),
		ConversationID: events.OptionalID(t.state.ConversationID),
		StartedAt:      at,
		Automatic:      automatic,
	}, at)
}

type CompleteInput struct {
	QualityScore *float64
	CompletedBy  string
}

func (t *Task) Complete(in CompleteInput, at time.Time) error {
	const op = "task.complete"
	if t.IsTerminal() {
		return domainagg.InvalidState(op, "task %s is %s", t.ID(), t.state.Status)
	}
	if in.QualityScore != nil && (*in.QualityScore < 0 || *in.QualityScore > 1) {
		return domainagg.Invalid(op, "quality score must be within [0,1]")
	}
	at = at.UTC()
	t.state.Status = StatusCompleted
	t.state.Progress = 100
	t.state.CompletedAt = &at
	t.state.UpdatedAt = at
	t.state.QualityScore = in.QualityScore
	t.Record(events.TaskCompleted, events.TaskCompletedPayload{
		TaskID:          t.ID(),
		ConversationID:  events.OptionalID(t.state.ConversationID),
		CompletedAt:     at,
		DurationSeconds: int64(t.Duration().Seconds()),
		QualityScore:    in.QualityScore,
		CompletedBy:     in.CompletedBy,
	}, at)
	return nil
}

func (t *Task) Cancel(reason string, at time.Time) error {
	const op = "task.cancel"
	if t.IsTerminal() {
		return domainagg.InvalidState(op, "task %s is %s", t.ID(), t.state.Status)
	}
	at = at.UTC()
	t.state.Status = StatusCancelled
	t.state.CancelReason = reason
	t.state.UpdatedAt = at
	t.Record(events.TaskCancelled, events.TaskCancelledPayload{
		TaskID:         t.ID(),
		ConversationID: events.OptionalID(t.state.ConversationID),
		Reason:         reason,
		CancelledAt:    at,
	}, at)
	return nil
}

// UpdateProgress records progress in [0,100]. Positive progress on a todo task
// starts it.
func (t *Task) UpdateProgress(progress int, at time.Time) error {
	const op = "task.update_progress"
	if progress < 0 || progress > 100 {
		return domainagg.Invalid(op, "progress %d outside [0,100]", progress)
	}
	if t.IsTerminal() {
		return domainagg.InvalidState(op, "task %s is %s", t.ID(), t.state.Status)
	}
	at = at.UTC()
	t.state.Progress = progress
	t.state.UpdatedAt = at
	if progress > 0 && t.state.Status == StatusTodo {
		t.start(at, true)
	}
	return nil
}

func (t *Task) Reassign(assigneeID string, at time.Time) error {
	const op = "task.reassign"
	if strings.TrimSpace(assigneeID) == "" {
		return domainagg.Invalid(op, "assignee id is required")
	}
	if t.IsTerminal() {
		return domainagg.InvalidState(op, "task %s is %s", t.ID(), t.state.Status)
	}
	if assigneeID == t.state.AssigneeID {
		return nil
	}
	at = at.UTC()
	previous := t.state.AssigneeID
	t.state.AssigneeID = assigneeID
	t.state.UpdatedAt = at
	t.Record(events.TaskReassigned, events.TaskReassignedPayload{
		TaskID:           t.ID(),
		PreviousAssignee: previous,
		NewAssignee:      assigneeID,
	}, at)
	return nil
}

// Duration is the time between start and completion, zero when either is missing.
func (t *Task) Duration() time.Duration {
	if t.state.StartedAt == nil || t.state.CompletedAt == nil {
		return 0
	}
	return t.state.CompletedAt.Sub(*t.state.StartedAt)
}

func (t *Task) IsOverdue(now time.Time) bool {
	return t.state.DueDate != nil && !t.IsTerminal() && now.After(*t.state.DueDate)
}

// NeedsEscalation flags overdue high-priority work and anything overdue by a day.
func (t *Task) NeedsEscalation(now time.Time) bool {
	if !t.IsOverdue(now) {
		return false
	}
	if t.state.Priority == PriorityHigh || t.state.Priority == PriorityUrgent {
		return true
	}
	return now.Sub(*t.state.DueDate) > 24*time.Hour
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
