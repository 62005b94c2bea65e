package aggregates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/casedesk-backend/internal/data/repos"
	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

// Publisher delivers committed events to in-process handlers.
type Publisher interface {
	Publish(ctx context.Context, ev events.DomainEvent) error
}

type EventStoreDeps struct {
	BaseDeps
	EventLog repos.EventLogRepo
	Outbox   repos.OutboxRepo
	// Bus may be nil; the outbox dispatcher then performs every delivery.
	Bus Publisher
	Now func() time.Time
}

// EventStore persists an aggregate row together with its pending events in
// the event log and the outbox, then publishes the events.
type EventStore struct {
	deps     BaseDeps
	eventLog repos.EventLogRepo
	outbox   repos.OutboxRepo
	now      func() time.Time
	log      *logger.Logger

	mu  sync.RWMutex
	bus Publisher
}

func NewEventStore(d EventStoreDeps) *EventStore {
	base := d.BaseDeps.withDefaults()
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &EventStore{
		deps:     base,
		eventLog: d.EventLog,
		outbox:   d.Outbox,
		bus:      d.Bus,
		now:      now,
		log:      base.Log.With("component", "EventStore"),
	}
}

// SetPublisher installs the bus after construction. Handlers subscribed to the
// bus usually depend on repositories built on this store. It is safe to call
// while saves are in flight; a nil publisher leaves delivery to the outbox.
func (s *EventStore) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.bus = p
	s.mu.Unlock()
}

func (s *EventStore) publisher() Publisher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bus
}

// RowFunc renders the aggregate row at the version the save will produce.
type RowFunc func(version int) (any, error)

// Save commits the aggregate. The transaction checks the persisted version,
// writes the row at version+1 and appends every pending event to the event
// log and the outbox. After commit the in-memory version advances, the buffer
// is cleared and events are published in order. Publishing stops at the first
// handler failure; the remaining rows stay in the outbox for the dispatcher
// and the handler error is returned with the save already durable. While an
// earlier version still has a live outbox row the new events are not
// published here either, so the dispatcher keeps per-aggregate order.
func (s *EventStore) Save(ctx context.Context, agg events.Aggregate, table string, row RowFunc) error {
	kind := string(agg.AggregateType())
	op := kind + ".save"
	ctx, span := otel.Tracer("casedesk/eventstore").Start(ctx, op)
	defer span.End()

	expected := agg.Version()
	next := expected + 1
	pending := agg.UncommittedEvents()
	span.SetAttributes(
		attribute.String("aggregate.id", agg.ID()),
		attribute.Int("aggregate.version", next),
		attribute.Int("events.count", len(pending)),
	)

	err := executeWrite(ctx, s.deps, op, func(dbc dbctx.Context) error {
		if err := checkOwnership(agg, pending); err != nil {
			return err
		}
		persisted, exists, err := s.deps.CASGuard.CurrentVersion(dbc, table, agg.ID())
		if err != nil {
			return err
		}
		if exists != (expected > 0) || persisted != expected {
			return domainagg.ConcurrencyConflict(op, kind, agg.ID(), expected, persisted)
		}
		rec, err := row(next)
		if err != nil {
			return err
		}
		if !exists {
			if err := dbc.DB(s.deps.DB).Create(rec).Error; err != nil {
				return err
			}
		} else {
			ok, err := s.deps.CASGuard.UpdateByVersion(dbc, rec, agg.ID(), expected)
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, fmt.Sprintf("%s %s changed concurrently at version %d", kind, agg.ID(), expected)); err != nil {
				return err
			}
		}
		if err := s.eventLog.Append(dbc, pending); err != nil {
			return err
		}
		return s.outbox.Enqueue(dbc, pending, s.now())
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	agg.MarkCommitted(next)
	s.log.Debug("aggregate saved", "aggregate_type", kind, "aggregate_id", agg.ID(), "version", next, "events", len(pending))
	return s.publish(ctx, agg, next, pending)
}

// checkOwnership rejects events recorded against another aggregate.
func checkOwnership(agg events.Aggregate, pending []events.DomainEvent) error {
	for _, ev := range pending {
		if ev.AggregateID != agg.ID() || ev.AggregateType != agg.AggregateType() || ev.Type.Owner() != agg.AggregateType() {
			return InvariantError(fmt.Sprintf("event %s (%s %s/%s) does not belong to %s %s",
				ev.ID, ev.Type, ev.AggregateType, ev.AggregateID, agg.AggregateType(), agg.ID()))
		}
	}
	return nil
}

func (s *EventStore) publish(ctx context.Context, agg events.Aggregate, version int, pending []events.DomainEvent) error {
	bus := s.publisher()
	if bus == nil || len(pending) == 0 {
		return nil
	}
	blocked, err := s.outbox.HasUndelivered(dbctx.Context{Ctx: ctx}, string(agg.AggregateType()), agg.ID(), version)
	if err != nil {
		s.log.Warn("outbox order check failed; leaving delivery to dispatcher",
			"aggregate_id", agg.ID(), "version", version, "error", err)
		return nil
	}
	if blocked {
		s.log.Debug("earlier events still pending; leaving delivery to dispatcher",
			"aggregate_type", agg.AggregateType(), "aggregate_id", agg.ID(), "version", version)
		return nil
	}
	for _, ev := range pending {
		if err := bus.Publish(ctx, ev); err != nil {
			s.log.Warn("synchronous delivery failed; outbox will retry",
				"event_id", ev.ID, "event_type", ev.Type, "aggregate_id", ev.AggregateID, "error", err)
			return err
		}
		if err := s.outbox.MarkDispatched(dbctx.Context{Ctx: ctx}, ev.ID, s.now()); err != nil {
			// Delivery happened; the dispatcher will redeliver and handlers are idempotent.
			s.log.Warn("mark dispatched failed", "event_id", ev.ID, "error", err)
		}
	}
	return nil
}
