package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/casedesk-backend/internal/domain/events"
	"github.com/yungbote/casedesk-backend/internal/platform/logger"
)

const DefaultChannel = "casedesk.events"

// Publisher is the slice of the redis client the forwarder needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// NewRedisClient connects and pings redis.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Forwarder relays committed domain events to the realtime bridge over a
// redis channel. The payload is the event envelope.
type Forwarder struct {
	log     *logger.Logger
	client  Publisher
	channel string
	types   []events.Type
	allow   map[events.Type]bool
}

func NewForwarder(baseLog *logger.Logger, client Publisher, channel string, types []events.Type) *Forwarder {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	f := &Forwarder{
		log:     baseLog.With("component", "BridgeForwarder"),
		client:  client,
		channel: channel,
		allow:   map[events.Type]bool{},
	}
	for _, t := range types {
		if !t.Known() || f.allow[t] {
			continue
		}
		f.allow[t] = true
		f.types = append(f.types, t)
	}
	return f
}

// ParseTypes turns configured names into known event types and reports the
// names it did not recognise.
func ParseTypes(names []string) (known []events.Type, unknown []string) {
	for _, n := range names {
		t := events.Type(strings.TrimSpace(n))
		if t == "" {
			continue
		}
		if t.Known() {
			known = append(known, t)
		} else {
			unknown = append(unknown, string(t))
		}
	}
	return known, unknown
}

func (f *Forwarder) Name() string { return "bridge.redis" }

// Types lists the event types the forwarder should be subscribed to.
func (f *Forwarder) Types() []events.Type { return append([]events.Type(nil), f.types...) }

func (f *Forwarder) Handle(ctx context.Context, ev events.DomainEvent) error {
	if !f.allow[ev.Type] {
		return nil
	}
	raw, err := events.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.ID, err)
	}
	if err := f.client.Publish(ctx, f.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s to %s: %w", ev.ID, f.channel, err)
	}
	f.log.Debug("Event forwarded to bridge", "event_id", ev.ID, "event_type", ev.Type, "channel", f.channel)
	return nil
}
