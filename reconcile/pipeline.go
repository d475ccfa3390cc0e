package reconcile

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Austin-Williams/cid-accumulator-client/chain"
	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/mmr"
	"github.com/Austin-Williams/cid-accumulator-client/storage"
)

// ChainSource is the subset of the chain adapter the pipeline needs.
// Narrowing to an interface here (rather than depending on *chain.Client
// directly) keeps the pipeline testable against a fake, per spec.md §1's
// treatment of the chain as an external collaborator.
type ChainSource interface {
	State(ctx context.Context) (chain.StateWord, []cid.Cid, error)
	RootCID(ctx context.Context) (cid.Cid, error)
	FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]*chain.LeafAppendedEvent, error)
	SubscribeNewHeads(ctx context.Context) (chain.Subscription, error)
}

// BlockSink is the subset of the content-addressed block client the
// pipeline needs: a fetch source during the backward sweep, and a
// publish sink during republish/live commit.
type BlockSink interface {
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Put(ctx context.Context, id cid.Cid, encoded []byte) error
	Provide(ctx context.Context, id cid.Cid)
	CanPut() bool
	CanProvide() bool
}

// LeafSubscriber is invoked once per newly committed leaf, in
// leaf_index order, per spec.md §5's "Subscriber callbacks are invoked
// in leaf_index order; a callback never runs concurrently with another
// for the same subscriber."
type LeafSubscriber func(index uint64, hexNewData string)

// Unsubscribe removes a previously registered LeafSubscriber.
type Unsubscribe func()

// Options configures a Pipeline's tunables, per spec.md §4.7's stated
// defaults.
type Options struct {
	RangeSize          uint64
	PollInterval       time.Duration
	SubscribeProbeWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.RangeSize == 0 {
		o.RangeSize = 1000
	}
	if o.PollInterval == 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.SubscribeProbeWait == 0 {
		o.SubscribeProbeWait = 3 * time.Second
	}
	return o
}

// Pipeline ties the chain adapter, block client, storage, and MMR
// engine together, per spec.md §4.7. ProcessNewLeafEvent,
// RestoreFromStorage, and subscriber registration serialize through mu,
// so MMR mutation and the subscriber list are never touched
// concurrently. SyncBackwardsFromLatest and Republish do not hold mu
// while they work, and live-sync start/stop state is guarded by liveMu.
type Pipeline struct {
	chain   ChainSource
	blocks  BlockSink
	store   storage.Store
	mmr     *mmr.Mmr
	opts    Options

	mu                  sync.Mutex
	lastProcessedBlock  uint64
	deployBlock         uint64
	subs                []leafSub

	liveMu      sync.Mutex
	liveRunning bool
	liveCancel  context.CancelFunc
	liveDone    chan struct{}
}

type leafSub struct {
	id int
	fn LeafSubscriber
}

// New constructs a Pipeline. engine is the MMR the pipeline will drive
// forward via Append; it should be freshly loaded (or empty) before
// New is called.
func New(chainSource ChainSource, blocks BlockSink, store storage.Store, engine *mmr.Mmr, opts Options) *Pipeline {
	return &Pipeline{
		chain:  chainSource,
		blocks: blocks,
		store:  store,
		mmr:    engine,
		opts:   opts.withDefaults(),
	}
}

// SubscribeLeaves registers fn to be called after each leaf commit.
func (p *Pipeline) SubscribeLeaves(fn LeafSubscriber) Unsubscribe {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := 0
	for _, s := range p.subs {
		if s.id >= id {
			id = s.id + 1
		}
	}
	p.subs = append(p.subs, leafSub{id: id, fn: fn})
	removed := false
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if removed {
			return
		}
		removed = true
		for i, s := range p.subs {
			if s.id == id {
				last := len(p.subs) - 1
				p.subs[i] = p.subs[last]
				p.subs = p.subs[:last]
				return
			}
		}
	}
}

// notifyLeaf invokes every subscriber in slice order (registration
// order until an unsubscribe swap-removes an entry), in
// leaf_index order across calls, per spec.md §5. Must be called with
// mu held so no two commits can interleave their subscriber calls.
func (p *Pipeline) notifyLeaf(index uint64, newData []byte) {
	hexData := hex.EncodeToString(newData)
	for _, s := range p.subs {
		s.fn(index, hexData)
	}
}
