// Package ratelimit implements the FIFO-ordered, rate-limited request
// queue spec.md §4.4 and §4.5 both need — the throttled JSON-RPC
// transport and the remote-pin side channel are two instances of the
// same primitive, not two bespoke implementations.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Austin-Williams/cid-accumulator-client/internal/logging"
)

// Queue serializes callers by arrival order and paces them at a minimum
// inter-call delay, per spec.md §4.4 ("A FIFO queue guarantees request
// ordering across concurrent callers").
type Queue struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	serving uint64
}

// New returns a Queue that admits at most one caller per minDelay.
func New(minDelay time.Duration) *Queue {
	q := &Queue{limiter: rate.NewLimiter(rate.Every(minDelay), 1)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Do runs fn once it's this caller's turn and the rate limiter admits
// it. Callers are served strictly in the order Do was called.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	// A correlation ID ties this call's queue wait and eventual dispatch
	// together in the logs, since tickets alone don't survive across a
	// busy queue serving many callers at once.
	correlationID := uuid.NewString()

	q.mu.Lock()
	ticket := q.next
	q.next++
	for q.serving != ticket {
		q.cond.Wait()
	}
	q.mu.Unlock()

	logging.Sugar.Debugw("ratelimit: dispatching queued request", "ticket", ticket, "correlation_id", correlationID)

	defer func() {
		q.mu.Lock()
		q.serving++
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	if err := q.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}
