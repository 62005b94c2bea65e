package aggregates

import (
	"context"
	"time"

	"github.com/yungbote/casedesk-backend/internal/data/repos"
	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/conversation"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
)

// ConversationRepository loads and saves conversation aggregates.
type ConversationRepository struct {
	store *EventStore
	rows  repos.ConversationRepo
	opts  []conversation.Option
}

func NewConversationRepository(store *EventStore, rows repos.ConversationRepo, opts ...conversation.Option) *ConversationRepository {
	return &ConversationRepository{store: store, rows: rows, opts: opts}
}

func (r *ConversationRepository) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	const op = "conversation.load"
	rec, err := r.rows.GetByID(dbctx.Background(ctx), id)
	if err != nil {
		return nil, MapError(op, err)
	}
	if rec == nil {
		return nil, domainagg.NotFound(op, "conversation", id)
	}
	c, err := conversation.FromRecord(rec, r.opts...)
	if err != nil {
		return nil, MapError(op, err)
	}
	return c, nil
}

func (r *ConversationRepository) Save(ctx context.Context, c *conversation.Conversation) error {
	return r.store.Save(ctx, c, conversation.Record{}.TableName(), func(version int) (any, error) {
		return conversation.ToRecord(c, version)
	})
}

// ListSLAWatch loads open conversations whose deadline falls before the cutoff
// and that are not yet marked violated.
func (r *ConversationRepository) ListSLAWatch(ctx context.Context, before time.Time, limit int) ([]*conversation.Conversation, error) {
	const op = "conversation.list_sla_watch"
	recs, err := r.rows.ListSLAWatch(dbctx.Background(ctx), before, limit)
	if err != nil {
		return nil, MapError(op, err)
	}
	out := make([]*conversation.Conversation, 0, len(recs))
	for _, rec := range recs {
		c, err := conversation.FromRecord(rec, r.opts...)
		if err != nil {
			return nil, MapError(op, err)
		}
		out = append(out, c)
	}
	return out, nil
}
