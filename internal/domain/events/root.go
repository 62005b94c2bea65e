package events

import (
	"time"

	"github.com/google/uuid"
)

// Aggregate is what the event store needs from any aggregate root.
type Aggregate interface {
	ID() string
	Version() int
	AggregateType() AggregateType
	UncommittedEvents() []DomainEvent
	MarkCommitted(version int)
}

// Root carries identity, version and the buffer of uncommitted events.
// Aggregates embed it and record events through Record.
type Root struct {
	id            string
	aggregateType AggregateType
	version       int
	pending       []DomainEvent
}

// NewRoot starts a never-persisted aggregate at version 0. An empty id gets a uuid.
func NewRoot(t AggregateType, id string) Root {
	if id == "" {
		id = uuid.NewString()
	}
	return Root{id: id, aggregateType: t}
}

func RehydrateRoot(t AggregateType, id string, version int) Root {
	return Root{id: id, aggregateType: t, version: version}
}

func (r *Root) ID() string                   { return r.id }
func (r *Root) Version() int                 { return r.version }
func (r *Root) AggregateType() AggregateType { return r.aggregateType }

// Record buffers a new event. Every event recorded before the next save carries
// the version that save will produce.
func (r *Root) Record(t Type, payload any, at time.Time) DomainEvent {
	ev := New(r.aggregateType, r.id, t, r.version+1, payload, at)
	r.pending = append(r.pending, ev)
	return ev
}

func (r *Root) AddDomainEvent(ev DomainEvent) {
	r.pending = append(r.pending, ev)
}

func (r *Root) UncommittedEvents() []DomainEvent {
	out := make([]DomainEvent, len(r.pending))
	copy(out, r.pending)
	return out
}

func (r *Root) ClearEvents() { r.pending = nil }

// MarkCommitted adopts the persisted version and drops the buffer.
func (r *Root) MarkCommitted(version int) {
	r.version = version
	r.pending = nil
}
