package sagas

import (
	"context"
	"fmt"
	"time"

	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/conversation"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/domain/task"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

const ReadyToCloseReason = "All associated tasks completed"

type TaskLister interface {
	ListByConversation(ctx context.Context, conversationID string) ([]*task.Task, error)
}

type ConversationGetter interface {
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
}

// TaskCompletedHandler announces ConversationReadyToClose once every task of
// a conversation has reached a terminal state.
type TaskCompletedHandler struct {
	tasks TaskLister
	convs ConversationGetter
	bus   Publisher
	log   *logger.Logger
	Now   func() time.Time
}

func NewTaskCompletedHandler(baseLog *logger.Logger, tasks TaskLister, convs ConversationGetter, bus Publisher) *TaskCompletedHandler {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &TaskCompletedHandler{
		tasks: tasks,
		convs: convs,
		bus:   bus,
		log:   baseLog.With("saga", "TaskCompleted"),
		Now:   time.Now,
	}
}

func (h *TaskCompletedHandler) Name() string { return "sagas.task_completed" }

func (h *TaskCompletedHandler) Handle(ctx context.Context, ev events.DomainEvent) error {
	var p events.TaskCompletedPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.ID, err)
	}
	if p.ConversationID == nil || *p.ConversationID == "" {
		return nil
	}
	convID := *p.ConversationID

	tasks, err := h.tasks.ListByConversation(ctx, convID)
	if err != nil {
		return fmt.Errorf("list tasks of conversation %s: %w", convID, err)
	}
	completed := 0
	for _, t := range tasks {
		if !t.IsTerminal() {
			return nil
		}
		if t.IsCompleted() {
			completed++
		}
	}

	conv, err := h.convs.GetConversation(ctx, convID)
	if err != nil {
		if domainagg.IsNotFound(err) {
			h.log.Warn("Completed task references a missing conversation", "task_id", p.TaskID, "conversation_id", convID)
			return nil
		}
		return fmt.Errorf("load conversation %s: %w", convID, err)
	}
	if conv.IsClosed() {
		return nil
	}

	ready := events.New(events.AggregateConversation, convID, events.ConversationReadyToClose, conv.Version(),
		events.ConversationReadyToClosePayload{
			ConversationID:      convID,
			Reason:              ReadyToCloseReason,
			CompletedTasksCount: completed,
		}, h.Now())
	h.log.Info("Conversation ready to close", "conversation_id", convID, "completed_tasks", completed, "trigger_task_id", p.TaskID)
	if err := h.bus.Publish(ctx, ready); err != nil {
		return fmt.Errorf("publish %s for %s: %w", events.ConversationReadyToClose, convID, err)
	}
	return nil
}
