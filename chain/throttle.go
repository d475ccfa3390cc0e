package chain

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/internal/logging"
	"github.com/Austin-Williams/cid-accumulator-client/internal/ratelimit"
)

// ThrottledTransport wraps a Transport with a FIFO rate-limit queue and
// full-jitter exponential backoff, per spec.md §4.4: "All JSON-RPC calls
// go through a rate-limited retry wrapper... A FIFO queue guarantees
// request ordering across concurrent callers."
type ThrottledTransport struct {
	inner      Transport
	queue      *ratelimit.Queue
	maxRetries int
	base       time.Duration
	factor     float64
}

// ThrottleOptions configures a ThrottledTransport. Zero-value fields
// are replaced with spec.md §4.4's stated defaults by NewThrottled.
type ThrottleOptions struct {
	MinDelay      time.Duration
	MaxRetries    int
	BackoffFactor float64
}

// NewThrottled wraps inner behind a rate limiter and retry policy.
func NewThrottled(inner Transport, opts ThrottleOptions) *ThrottledTransport {
	if opts.MinDelay <= 0 {
		opts.MinDelay = 200 * time.Millisecond
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.BackoffFactor <= 0 {
		opts.BackoffFactor = 2
	}
	return &ThrottledTransport{
		inner:      inner,
		queue:      ratelimit.New(opts.MinDelay),
		maxRetries: opts.MaxRetries,
		base:       opts.MinDelay,
		factor:     opts.BackoffFactor,
	}
}

// Call serializes this request behind the FIFO queue, then retries
// transient failures with full-jitter exponential backoff bounded by
// maxRetries.
func (t *ThrottledTransport) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var result json.RawMessage
	attempt := 0
	err := t.queue.Do(ctx, func(ctx context.Context) error {
		return backoff.Retry(func() error {
			res, err := t.inner.Call(ctx, method, params...)
			if err != nil {
				attempt++
				if attempt > t.maxRetries {
					return backoff.Permanent(accerr.New(accerr.Transport, "chain.Call", err))
				}
				logging.Sugar.Warnw("chain call failed, retrying", "method", method, "attempt", attempt, "err", err)
				return err
			}
			result = res
			return nil
		}, t.backoffPolicy(ctx))
	})
	if err != nil {
		// backoff.Retry unwraps a backoff.Permanent error and returns its
		// cause directly, so err here is already the *accerr.Error the
		// retry loop built on its last attempt.
		if accerr.KindOf(err) != accerr.Unknown {
			return nil, err
		}
		return nil, accerr.New(accerr.Cancelled, "chain.Call", err)
	}
	return result, nil
}

// Subscribe is passed straight through: a push subscription isn't a
// single request-response pair the FIFO queue and retry policy can
// usefully wrap, per spec.md §4.6's subscription-or-poll split.
func (t *ThrottledTransport) Subscribe(ctx context.Context, method string, params ...any) (Subscription, error) {
	return t.inner.Subscribe(ctx, method, params...)
}

// backoffPolicy builds a full-jitter exponential backoff bounded by
// maxRetries attempts, factor, and ctx's cancellation.
func (t *ThrottledTransport) backoffPolicy(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = t.base
	eb.Multiplier = t.factor
	eb.RandomizationFactor = 1 // full jitter: delay in [0, 2*computed)
	eb.MaxElapsedTime = 0     // bounded by attempt count, not wall clock
	full := &fullJitterBackoff{eb}
	return backoff.WithContext(backoff.WithMaxRetries(full, uint64(t.maxRetries)), ctx)
}

// fullJitterBackoff samples uniformly in [0, next) instead of
// [next/2, next*1.5) the way backoff.ExponentialBackOff's own
// RandomizationFactor does, matching spec.md §4.4's "full-jitter
// additive" backoff precisely.
type fullJitterBackoff struct {
	*backoff.ExponentialBackOff
}

func (f *fullJitterBackoff) NextBackOff() time.Duration {
	next := f.ExponentialBackOff.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	return time.Duration(rand.Int63n(int64(next) + 1))
}
