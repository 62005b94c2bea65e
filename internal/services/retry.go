package services

import (
	"context"
	"errors"
	"time"

	domainagg "github.com/yungbote/casedesk-backend/internal/domain/aggregates"
	"github.com/yungbote/casedesk-backend/internal/eventbus"
)

type RetryPolicy struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 25 * time.Millisecond}
}

// Options are shared by the use-case services.
type Options struct {
	Retry RetryPolicy
	Now   func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Retry.Attempts < 1 {
		o.Retry = DefaultRetryPolicy()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RetryOnConflict runs fn until it succeeds or fails with something other than
// a version conflict or a retryable storage error. fn must reload the
// aggregate on every call. Errors raised by event handlers after a commit are
// never retried: the write already happened.
func RetryOnConflict(ctx context.Context, attempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 && backoff > 0 {
			timer := time.NewTimer(time.Duration(i) * backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(err, ctx.Err())
			case <-timer.C:
			}
		}
		err = fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	if IsDeliveryError(err) {
		return false
	}
	return domainagg.IsConcurrencyConflict(err) || domainagg.IsCode(err, domainagg.CodeRetryable)
}

// IsDeliveryError reports whether err came from an event handler after the
// aggregate was committed. The outbox redelivers those events.
func IsDeliveryError(err error) bool {
	var he *eventbus.HandlerError
	return errors.As(err, &he)
}
