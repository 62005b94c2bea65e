package sagas

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/domain/requirement"
	"github.com/yungbote/casedesk-backend/internal/domain/task"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
	"github.com/yungbote/casedesk-backend/internal/services"
)

const (
	AutoTaskSource  = "RequirementCreated"
	maxTitleContent = 80
)

type TaskCreator interface {
	CreateTask(ctx context.Context, in task.NewInput) (*task.Task, error)
	ListByRequirement(ctx context.Context, requirementID string) ([]*task.Task, error)
}

// RequirementCreatedHandler opens a follow-up task for requirements that
// qualify for automatic handling.
type RequirementCreatedHandler struct {
	tasks TaskCreator
	log   *logger.Logger
}

func NewRequirementCreatedHandler(baseLog *logger.Logger, tasks TaskCreator) *RequirementCreatedHandler {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &RequirementCreatedHandler{
		tasks: tasks,
		log:   baseLog.With("saga", "RequirementCreated"),
	}
}

func (h *RequirementCreatedHandler) Name() string { return "sagas.requirement_created" }

func (h *RequirementCreatedHandler) Handle(ctx context.Context, ev events.DomainEvent) error {
	var p events.RequirementCreatedPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.ID, err)
	}
	reqID := p.RequirementID
	if reqID == "" {
		reqID = ev.AggregateID
	}
	if !requirement.ShouldAutoCreateTask(requirement.Priority(p.Priority), p.Source) {
		return nil
	}

	existing, err := h.tasks.ListByRequirement(ctx, reqID)
	if err != nil {
		return fmt.Errorf("list tasks of requirement %s: %w", reqID, err)
	}
	if len(existing) > 0 {
		return nil
	}

	in := task.NewInput{
		ID:            FollowUpTaskID(reqID),
		Title:         followUpTitle(p.Content),
		Description:   p.Content,
		RequirementID: reqID,
		Priority:      TaskPriority(requirement.Priority(p.Priority)),
		Metadata: map[string]any{
			"autoCreated":        true,
			"source":             AutoTaskSource,
			"requirementEventId": ev.ID,
			"customerId":         p.CustomerID,
		},
	}
	if p.ConversationID != nil {
		in.ConversationID = *p.ConversationID
	}
	if requirement.NeedsCustomerCommunication(in.ConversationID, requirement.Priority(p.Priority), p.Category) {
		in.Metadata["notifyCustomer"] = true
	}

	_, err = h.tasks.CreateTask(ctx, in)
	switch {
	case err == nil:
	case domainagg.IsConcurrencyConflict(err):
		// a concurrent delivery created it first
		return nil
	case services.IsDeliveryError(err):
		h.log.Warn("Follow-up task saved; downstream delivery deferred to outbox", "requirement_id", reqID, "error", err)
	default:
		return fmt.Errorf("create follow-up task for requirement %s: %w", reqID, err)
	}
	h.log.Info("Follow-up task created",
		"requirement_id", reqID,
		"task_id", in.ID,
		"priority", in.Priority,
		"source", p.Source,
		"notify_customer", in.Metadata["notifyCustomer"] == true,
	)
	return nil
}

// FollowUpTaskID is stable per requirement so concurrent deliveries collide on
// the primary key instead of creating two tasks.
func FollowUpTaskID(requirementID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("casedesk/follow-up/"+requirementID)).String()
}

// TaskPriority maps requirement priority onto the task scale. Urgent
// requirements become high-priority tasks.
func TaskPriority(p requirement.Priority) task.Priority {
	switch p {
	case requirement.PriorityUrgent, requirement.PriorityHigh:
		return task.PriorityHigh
	case requirement.PriorityLow:
		return task.PriorityLow
	default:
		return task.PriorityMedium
	}
}

func followUpTitle(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) > maxTitleContent {
		content = string([]rune(content)[:maxTitleContent]) + "..."
	}
	return "Follow up: " + content
}
