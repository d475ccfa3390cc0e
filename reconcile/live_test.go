package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Austin-Williams/cid-accumulator-client/chain"
	"github.com/Austin-Williams/cid-accumulator-client/cid"
)

func TestOnNewHeadProcessesNewLogsAndAdvances(t *testing.T) {
	ctx := context.Background()
	events := sequentialEvents(2)
	p := newTestPipeline(t, events, &fakeBlocks{})
	fc := p.chain.(*fakeChain)
	fc.stateOverride = func() (chain.StateWord, []cid.Cid, error) {
		return chain.StateWord{PreviousAppendBlock: 2}, nil, nil
	}

	require.NoError(t, p.onNewHead(ctx))
	assert.Equal(t, uint64(2), p.mmr.LeafCount)

	p.mu.Lock()
	last := p.lastProcessedBlock
	p.mu.Unlock()
	assert.Equal(t, uint64(2), last)

	// A second tick with no chain progress must be a no-op.
	require.NoError(t, p.onNewHead(ctx))
	assert.Equal(t, uint64(2), p.mmr.LeafCount)
}

func TestStopLiveSyncIsIdempotentBeforeStart(t *testing.T) {
	p := newTestPipeline(t, nil, &fakeBlocks{})
	p.StopLiveSync() // must not panic or block when never started
}

func TestStartAndStopLiveSyncPolling(t *testing.T) {
	events := sequentialEvents(1)
	p := newTestPipeline(t, events, &fakeBlocks{})
	fc := p.chain.(*fakeChain)
	fc.subscribeErr = context.DeadlineExceeded
	fc.stateOverride = func() (chain.StateWord, []cid.Cid, error) {
		return chain.StateWord{PreviousAppendBlock: 1}, nil, nil
	}
	p.opts.PollInterval = 5 * time.Millisecond
	p.opts.SubscribeProbeWait = 5 * time.Millisecond

	require.NoError(t, p.StartLiveSync(context.Background()))
	time.Sleep(50 * time.Millisecond)
	p.StopLiveSync()

	assert.Equal(t, uint64(1), p.mmr.LeafCount)
}
