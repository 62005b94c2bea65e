// Package sagas holds the cross-aggregate reactions that keep conversations,
// tasks and requirements consistent. Every handler tolerates redelivery.
package sagas

import (
	"context"
	"fmt"

	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/eventbus"
)

// Summarizer produces a short summary of a conversation for its resolution.
type Summarizer interface {
	SummarizeConversation(ctx context.Context, conversationID string) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev events.DomainEvent) error
}

// Subscriber is the subset of *eventbus.Bus the sagas register with.
type Subscriber interface {
	Subscribe(t events.Type, h eventbus.Handler) error
}

type Handlers struct {
	TaskCompleted            *TaskCompletedHandler
	ConversationReadyToClose *ConversationReadyToCloseHandler
	RequirementCreated       *RequirementCreatedHandler
}

// Register subscribes every non-nil handler to its event type.
func (h Handlers) Register(bus Subscriber) error {
	if h.TaskCompleted != nil {
		if err := bus.Subscribe(events.TaskCompleted, h.TaskCompleted); err != nil {
			return fmt.Errorf("subscribe %s: %w", h.TaskCompleted.Name(), err)
		}
	}
	if h.ConversationReadyToClose != nil {
		if err := bus.Subscribe(events.ConversationReadyToClose, h.ConversationReadyToClose); err != nil {
			return fmt.Errorf("subscribe %s: %w", h.ConversationReadyToClose.Name(), err)
		}
	}
	if h.RequirementCreated != nil {
		if err := bus.Subscribe(events.RequirementCreated, h.RequirementCreated); err != nil {
			return fmt.Errorf("subscribe %s: %w", h.RequirementCreated.Name(), err)
		}
	}
	return nil
}
