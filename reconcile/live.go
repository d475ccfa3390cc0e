package reconcile

import (
	"context"
	"time"

	"github.com/Austin-Williams/cid-accumulator-client/chain"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/internal/logging"
)

// StartLiveSync begins the forward live-sync loop, per spec.md §4.7:
// prefer a push subscription if one is available and the probe
// confirms it within SubscribeProbeWait, otherwise fall back to
// polling at PollInterval. It returns once the sync loop is running in
// the background; call StopLiveSync to end it.
func (p *Pipeline) StartLiveSync(ctx context.Context) error {
	p.liveMu.Lock()
	if p.liveRunning {
		p.liveMu.Unlock()
		return nil
	}
	liveCtx, cancel := context.WithCancel(ctx)
	p.liveRunning = true
	p.liveCancel = cancel
	p.liveDone = make(chan struct{})
	p.liveMu.Unlock()

	sub, err := p.probeSubscription(liveCtx)
	if err != nil {
		logging.Sugar.Infow("subscription unavailable, falling back to polling", "err", err)
		go p.runPolling(liveCtx)
		return nil
	}
	go p.runSubscription(liveCtx, sub)
	return nil
}

// StopLiveSync ends the live-sync loop, per spec.md §5: "Shutdown sets
// live_sync_running = false, cancels the timer, closes the WebSocket,
// then closes storage" — the last step (closing storage) is the
// caller's responsibility once StopLiveSync returns.
func (p *Pipeline) StopLiveSync() {
	p.liveMu.Lock()
	if !p.liveRunning {
		p.liveMu.Unlock()
		return
	}
	p.liveRunning = false
	cancel := p.liveCancel
	done := p.liveDone
	p.liveMu.Unlock()

	cancel()
	<-done
}

// probeSubscription attempts eth_subscribe("newHeads") with a hard
// timeout, per spec.md §5: "The subscription-support probe uses a hard
// 3s timeout."
func (p *Pipeline) probeSubscription(ctx context.Context) (chain.Subscription, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.opts.SubscribeProbeWait)
	defer cancel()
	return p.chain.SubscribeNewHeads(probeCtx)
}

func (p *Pipeline) runPolling(ctx context.Context) {
	defer close(p.liveDone)
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.onNewHead(ctx); err != nil {
				logging.Sugar.Warnw("live poll tick failed", "err", err)
			}
		}
	}
}

func (p *Pipeline) runSubscription(ctx context.Context, sub chain.Subscription) {
	defer close(p.liveDone)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Notifications():
			if !ok {
				if err := sub.Err(); err != nil {
					logging.Sugar.Warnw("live subscription ended", "err", err)
				}
				return
			}
			if err := p.onNewHead(ctx); err != nil {
				logging.Sugar.Warnw("live subscription tick failed", "err", err)
			}
		}
	}
}

// onNewHead is the shared per-head action both the polling and
// subscription variants run, per spec.md §4.7: read state, and if the
// chain's append block has advanced, fetch and process the logs in
// between.
func (p *Pipeline) onNewHead(ctx context.Context) error {
	const op = "reconcile.onNewHead"

	state, _, err := p.chain.State(ctx)
	if err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	bPrime := state.PreviousAppendBlock

	p.mu.Lock()
	last := p.lastProcessedBlock
	p.mu.Unlock()

	if bPrime <= last {
		return nil
	}

	events, err := p.chain.FetchLogs(ctx, last+1, bPrime)
	if err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	for _, ev := range events {
		if err := p.ProcessNewLeafEvent(ctx, ev); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.lastProcessedBlock = bPrime
	p.mu.Unlock()
	return nil
}
