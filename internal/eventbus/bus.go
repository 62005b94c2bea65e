package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

// Handler reacts to one published domain event. Handlers must tolerate
// redelivery of the same event.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ev events.DomainEvent) error
}

type funcHandler struct {
	name string
	fn   func(ctx context.Context, ev events.DomainEvent) error
}

func (h funcHandler) Name() string { return h.name }
func (h funcHandler) Handle(ctx context.Context, ev events.DomainEvent) error {
	return h.fn(ctx, ev)
}

// Func adapts a function into a named Handler.
func Func(name string, fn func(ctx context.Context, ev events.DomainEvent) error) Handler {
	return funcHandler{name: name, fn: fn}
}

// HandlerError reports a handler that failed for a specific event.
type HandlerError struct {
	EventID   string
	EventType events.Type
	Handler   string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed on %s (%s): %v", e.Handler, e.EventType, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Bus is the in-process dispatch table from event type to handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[events.Type][]Handler
	log      *logger.Logger
}

func New(baseLog *logger.Logger) *Bus {
	return &Bus{
		handlers: make(map[events.Type][]Handler),
		log:      baseLog.With("component", "EventBus"),
	}
}

func (b *Bus) Subscribe(t events.Type, h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	if h.Name() == "" {
		return fmt.Errorf("handler Name() is empty")
	}
	if !t.Known() {
		return fmt.Errorf("unknown event type %q", t)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.handlers[t] {
		if existing.Name() == h.Name() {
			return fmt.Errorf("handler %s already subscribed to %s", h.Name(), t)
		}
	}
	b.handlers[t] = append(b.handlers[t], h)
	return nil
}

func (b *Bus) Handlers(t events.Type) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Handler(nil), b.handlers[t]...)
}

// Publish runs every handler subscribed to ev.Type in subscription order.
// A failing handler does not stop the others; all failures come back joined
// as *HandlerError values.
func (b *Bus) Publish(ctx context.Context, ev events.DomainEvent) error {
	handlers := b.Handlers(ev.Type)
	if len(handlers) == 0 {
		return nil
	}
	ctx, span := otel.Tracer("casedesk/eventbus").Start(ctx, "eventbus.publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", string(ev.Type)),
		attribute.String("event.id", ev.ID),
		attribute.Int("handlers", len(handlers)),
	)

	var errs []error
	for _, h := range handlers {
		if err := b.invoke(ctx, h, ev); err != nil {
			b.log.Error("event handler failed",
				"handler", h.Name(),
				"event_type", ev.Type,
				"event_id", ev.ID,
				"aggregate_id", ev.AggregateID,
				"error", err,
			)
			errs = append(errs, &HandlerError{EventID: ev.ID, EventType: ev.Type, Handler: h.Name(), Err: err})
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failure")
	}
	return err
}

func (b *Bus) invoke(ctx context.Context, h Handler, ev events.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(ctx, ev)
}
