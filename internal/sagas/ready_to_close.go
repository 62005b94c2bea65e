package sagas

import (
	"context"
	"fmt"
	"strings"

	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/conversation"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
	"github.com/yungbote/casedesk-backend/internal/services"
)

type ConversationCloser interface {
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
	CloseConversation(ctx context.Context, id, resolution string) error
}

// ConversationReadyToCloseHandler closes the conversation with a generated
// resolution.
type ConversationReadyToCloseHandler struct {
	convs      ConversationCloser
	summarizer Summarizer
	log        *logger.Logger
}

func NewConversationReadyToCloseHandler(baseLog *logger.Logger, convs ConversationCloser, summarizer Summarizer) *ConversationReadyToCloseHandler {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &ConversationReadyToCloseHandler{
		convs:      convs,
		summarizer: summarizer,
		log:        baseLog.With("saga", "ConversationReadyToClose"),
	}
}

func (h *ConversationReadyToCloseHandler) Name() string { return "sagas.conversation_ready_to_close" }

func (h *ConversationReadyToCloseHandler) Handle(ctx context.Context, ev events.DomainEvent) error {
	var p events.ConversationReadyToClosePayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", ev.ID, err)
	}
	convID := p.ConversationID
	if convID == "" {
		convID = ev.AggregateID
	}

	conv, err := h.convs.GetConversation(ctx, convID)
	if err != nil {
		if domainagg.IsNotFound(err) {
			h.log.Warn("Conversation to close no longer exists", "conversation_id", convID)
			return nil
		}
		return fmt.Errorf("load conversation %s: %w", convID, err)
	}
	if conv.IsClosed() {
		return nil
	}

	resolution := h.resolution(ctx, convID, p)
	err = h.convs.CloseConversation(ctx, convID, resolution)
	switch {
	case err == nil:
	case domainagg.IsInvalidState(err):
		// closed by someone else since the load
		return nil
	case services.IsDeliveryError(err):
		h.log.Warn("Conversation closed; downstream delivery deferred to outbox", "conversation_id", convID, "error", err)
	default:
		return fmt.Errorf("close conversation %s: %w", convID, err)
	}
	h.log.Info("Conversation closed by saga", "conversation_id", convID, "completed_tasks", p.CompletedTasksCount)
	return nil
}

func (h *ConversationReadyToCloseHandler) resolution(ctx context.Context, convID string, p events.ConversationReadyToClosePayload) string {
	summary := ""
	if h.summarizer != nil {
		s, err := h.summarizer.SummarizeConversation(ctx, convID)
		if err != nil {
			h.log.Warn("Summarizer failed; using reason", "conversation_id", convID, "error", err)
		} else {
			summary = strings.TrimSpace(s)
		}
	}
	if summary == "" {
		summary = p.Reason
	}
	if summary == "" {
		summary = ReadyToCloseReason
	}
	if p.CompletedTasksCount > 0 {
		return fmt.Sprintf("All %d tasks completed. %s", p.CompletedTasksCount, summary)
	}
	return summary
}
