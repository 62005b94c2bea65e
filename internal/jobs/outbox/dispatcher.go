package outbox

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/casedesk-backend/internal/data/repos"
	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/platform/dbctx"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

type Publisher interface {
	Publish(ctx context.Context, ev events.DomainEvent) error
}

type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	// Concurrency bounds how many aggregates are delivered in parallel.
	Concurrency int           `yaml:"concurrency"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	// MinAge keeps the dispatcher off rows the saving request is still
	// delivering synchronously.
	MinAge time.Duration `yaml:"min_age"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		Concurrency:  10,
		MaxAttempts:  3,
		BackoffBase:  time.Second,
		BackoffMax:   5 * time.Minute,
		MinAge:       2 * time.Second,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.MinAge < 0 {
		c.MinAge = 0
	}
	return c
}

// Backoff is the delay before the next attempt once attempts deliveries have
// failed: base * 2^attempts, capped at BackoffMax.
func (c Config) Backoff(attempts int) time.Duration {
	c = c.normalized()
	if attempts < 0 {
		attempts = 0
	}
	d := float64(c.BackoffBase) * math.Pow(2, float64(attempts))
	if d >= float64(c.BackoffMax) {
		return c.BackoffMax
	}
	return time.Duration(d)
}

// DeliveryExhaustedError is logged when a row is moved to the dead-letter set.
type DeliveryExhaustedError struct {
	EventID   string
	EventType events.Type
	Attempts  int
	Err       error
}

func (e *DeliveryExhaustedError) Error() string {
	return fmt.Sprintf("event %s (%s) not delivered after %d attempts: %v", e.EventID, e.EventType, e.Attempts, e.Err)
}

func (e *DeliveryExhaustedError) Unwrap() error { return e.Err }

type Result struct {
	Claimed      int `json:"claimed"`
	Dispatched   int `json:"dispatched"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
	// Deferred rows sat behind a failed row of the same aggregate this pass.
	Deferred int `json:"deferred"`
}

func (r *Result) add(o Result) {
	r.Claimed += o.Claimed
	r.Dispatched += o.Dispatched
	r.Failed += o.Failed
	r.DeadLettered += o.DeadLettered
	r.Deferred += o.Deferred
}

// Dispatcher redelivers outbox rows the synchronous path did not complete.
type Dispatcher struct {
	repo repos.OutboxRepo
	bus  Publisher
	log  *logger.Logger
	cfg  Config
	Now  func() time.Time

	// serializes passes started by the loop and by manual triggers
	passMu sync.Mutex
}

func NewDispatcher(repo repos.OutboxRepo, bus Publisher, baseLog *logger.Logger, cfg Config) *Dispatcher {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &Dispatcher{
		repo: repo,
		bus:  bus,
		log:  baseLog.With("component", "OutboxDispatcher"),
		cfg:  cfg.normalized(),
		Now:  time.Now,
	}
}

func (d *Dispatcher) Config() Config { return d.cfg }

// Start runs the polling loop in the background until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.log.Info("Starting outbox dispatcher",
		"poll_interval", d.cfg.PollInterval.String(),
		"batch_size", d.cfg.BatchSize,
		"concurrency", d.cfg.Concurrency,
		"max_attempts", d.cfg.MaxAttempts,
	)
	go d.Run(ctx)
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Outbox dispatcher panic", "panic", r)
		}
	}()
	res, err := d.ProcessOnce(ctx)
	if err != nil {
		d.log.Warn("Outbox pass failed", "error", err)
		return
	}
	if res.Claimed > 0 {
		d.log.Debug("Outbox pass complete",
			"claimed", res.Claimed,
			"dispatched", res.Dispatched,
			"failed", res.Failed,
			"dead_lettered", res.DeadLettered,
			"deferred", res.Deferred,
		)
	}
}

// ProcessOnce delivers one batch of due rows. Rows of one aggregate are
// delivered sequentially in commit order and the aggregate is abandoned for
// this pass at its first failure; different aggregates run concurrently.
func (d *Dispatcher) ProcessOnce(ctx context.Context) (Result, error) {
	d.passMu.Lock()
	defer d.passMu.Unlock()

	ctx, span := otel.Tracer("casedesk/outbox").Start(ctx, "outbox.process")
	defer span.End()

	now := d.Now().UTC()
	rows, err := d.repo.ListDue(dbctx.Background(ctx), now, now.Add(-d.cfg.MinAge), d.cfg.BatchSize)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("outbox.claimed", len(rows)))
	if len(rows) == 0 {
		return Result{}, nil
	}

	groups := groupByAggregate(rows)
	results := make([]Result, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, group := range groups {
		g.Go(func() error {
			r, err := d.deliverGroup(gctx, group)
			results[i] = r
			return err
		})
	}
	err = g.Wait()

	var total Result
	for _, r := range results {
		total.add(r)
	}
	return total, err
}

// deliverGroup returns an error only for bookkeeping failures; handler
// failures are recorded on the row.
func (d *Dispatcher) deliverGroup(ctx context.Context, rows []*events.OutboxRecord) (Result, error) {
	res := Result{Claimed: len(rows)}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			res.Deferred += len(rows) - i
			return res, nil
		}
		delivered, deadLettered, err := d.deliver(ctx, row)
		if err != nil {
			res.Deferred += len(rows) - i - 1
			return res, err
		}
		if delivered {
			res.Dispatched++
			continue
		}
		if deadLettered {
			// A dead-lettered row no longer holds its aggregate back.
			res.DeadLettered++
			continue
		}
		res.Failed++
		res.Deferred += len(rows) - i - 1
		return res, nil
	}
	return res, nil
}

func (d *Dispatcher) deliver(ctx context.Context, row *events.OutboxRecord) (delivered, deadLettered bool, err error) {
	dbc := dbctx.Background(ctx)
	ev, decodeErr := row.Event()
	handlerErr := decodeErr
	if decodeErr == nil {
		handlerErr = d.publish(ctx, ev)
	}
	now := d.Now().UTC()
	if handlerErr == nil {
		return true, false, d.repo.MarkDispatched(dbc, row.EventID, now)
	}

	attempts := row.Attempts + 1
	if decodeErr != nil || attempts >= d.cfg.MaxAttempts {
		exhausted := &DeliveryExhaustedError{
			EventID:   row.EventID,
			EventType: events.Type(row.EventType),
			Attempts:  attempts,
			Err:       handlerErr,
		}
		d.log.Error("Outbox event dead-lettered",
			"event_id", row.EventID,
			"event_type", row.EventType,
			"aggregate_id", row.AggregateID,
			"attempts", attempts,
			"error", exhausted,
		)
		return false, true, d.repo.MarkDeadLettered(dbc, row.EventID, attempts, now, handlerErr.Error())
	}

	next := now.Add(d.cfg.Backoff(attempts))
	d.log.Warn("Outbox delivery failed",
		"event_id", row.EventID,
		"event_type", row.EventType,
		"aggregate_id", row.AggregateID,
		"attempts", attempts,
		"next_attempt_at", next,
		"error", handlerErr,
	)
	return false, false, d.repo.MarkFailed(dbc, row.EventID, attempts, next, handlerErr.Error())
}

func (d *Dispatcher) publish(ctx context.Context, ev events.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publish %s panicked: %v", ev.ID, r)
		}
	}()
	return d.bus.Publish(ctx, ev)
}

// DeadLetters lists rows that exhausted their attempts, newest first.
func (d *Dispatcher) DeadLetters(ctx context.Context, limit int) ([]*events.OutboxRecord, error) {
	return d.repo.ListDeadLettered(dbctx.Background(ctx), limit)
}

// Requeue moves a dead-lettered row back to the live queue. It reports false
// when the row is unknown, already delivered or not dead-lettered.
func (d *Dispatcher) Requeue(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.repo.Requeue(dbctx.Background(ctx), eventID, d.Now().UTC())
	if err == nil && ok {
		d.log.Info("Outbox event requeued", "event_id", eventID)
	}
	return ok, err
}

func (d *Dispatcher) Stats(ctx context.Context) (repos.OutboxStats, error) {
	return d.repo.Stats(dbctx.Background(ctx))
}

func groupByAggregate(rows []*events.OutboxRecord) [][]*events.OutboxRecord {
	index := map[string]int{}
	var groups [][]*events.OutboxRecord
	for _, row := range rows {
		key := row.AggregateType + "/" + row.AggregateID
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], row)
	}
	return groups
}
