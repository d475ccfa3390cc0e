package reconcile

import (
	"context"
	"sort"
	"sync"

	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/dagresolver"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/internal/logging"
	"github.com/Austin-Williams/cid-accumulator-client/mmr"
	"github.com/Austin-Williams/cid-accumulator-client/storage"
)

// resolveAttempt is one outstanding cancelable resolve_tree call fired
// after a sweep window, per spec.md §4.7 step 4.
type resolveAttempt struct {
	cancel context.CancelFunc
	result chan resolveResult
}

type resolveResult struct {
	leaves [][]byte
	err    error
}

// SyncBackwardsFromLatest implements spec.md §4.7's backward sweep:
// walk blocks downward in windows of RangeSize, reconstructing each
// leaf's pre-state via the MMR inverse, while racing a cancelable
// content-addressed resolve of the oldest root reached so far against
// continued log walking. Whichever finishes first wins: a successful
// resolve fills in everything below the window directly from the block
// source; running out of chain history to walk falls back to a
// log-driven fill for every remaining leaf.
func (p *Pipeline) SyncBackwardsFromLatest(ctx context.Context) error {
	const op = "reconcile.SyncBackwardsFromLatest"

	state, peaks, err := p.chain.State(ctx)
	if err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	if state.LeafCount == 0 {
		return nil
	}
	L := state.LeafCount - 1
	B := state.PreviousAppendBlock
	D := state.DeployBlock

	p.mu.Lock()
	p.deployBlock = D
	p.mu.Unlock()

	H, err := storage.HighestContiguousLeafIndexWithData(ctx, p.store)
	if err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	if H >= 0 && uint64(H) >= L {
		return nil // already fully covered locally
	}

	oldestRoot, _, err := mmr.BagPeaks(peaks)
	if err != nil {
		return accerr.New(accerr.Invariant, op, err)
	}
	oldestPeaks := peaks
	expectedNextIndex := int64(L) // next leaf index we expect to see walking downward

	sweep := &backwardSweep{store: p.store, blocks: p.blocks}

	currentBlock := B
	sweep.fireResolve(ctx, oldestRoot)

	for {
		fromBlock := D
		if currentBlock >= p.opts.RangeSize {
			if candidate := currentBlock - p.opts.RangeSize + 1; candidate > fromBlock {
				fromBlock = candidate
			}
		}

		events, err := p.chain.FetchLogs(ctx, fromBlock, currentBlock)
		if err != nil {
			sweep.cancelAll()
			return accerr.New(accerr.Transport, op, err)
		}
		sort.Slice(events, func(i, j int) bool { return events[i].LeafIndex > events[j].LeafIndex })

		for _, ev := range events {
			if int64(ev.LeafIndex) != expectedNextIndex {
				sweep.cancelAll()
				return accerr.Newf(accerr.Invariant, op, "expected leaf index %d, got %d", expectedNextIndex, ev.LeafIndex)
			}

			prevRoot, prevPeaks, err := mmr.PreviousRootAndPeaks(oldestPeaks, ev.NewData, ev.LeftInputs)
			if err != nil {
				sweep.cancelAll()
				return accerr.New(accerr.Invariant, op, err)
			}
			// prevPeaks/expectedNextIndex describe the MMR as it stood
			// immediately before ev was appended (expectedNextIndex equals
			// ev's own leaf index, i.e. the leaf count at that point).
			peaksWithHeights, err := mmr.PeaksWithHeights(prevPeaks, uint64(expectedNextIndex))
			if err != nil {
				sweep.cancelAll()
				return accerr.New(accerr.Invariant, op, err)
			}

			if err := storage.PutLeaf(ctx, p.store, uint64(ev.LeafIndex), storage.LeafRecord{
				NewData:                      ev.NewData,
				Event:                        ev,
				BlockNumber:                  ev.BlockNumber,
				RootCIDBeforeAppend:          prevRoot,
				PeaksWithHeightsBeforeAppend: peaksWithHeights,
			}); err != nil {
				sweep.cancelAll()
				return err
			}

			oldestRoot = prevRoot
			oldestPeaks = prevPeaks
			expectedNextIndex--
		}

		if leaves, ok := sweep.checkForSuccess(); ok {
			sweep.cancelAll()
			if err := fillFromResolvedLeaves(ctx, p.store, leaves); err != nil {
				return err
			}
			return finishSweep(ctx, p.store, L)
		}

		if expectedNextIndex <= H || currentBlock <= D {
			break
		}
		currentBlock = fromBlock - 1
		sweep.fireResolve(ctx, oldestRoot)
	}

	sweep.cancelAll()
	return finishSweep(ctx, p.store, L)
}

// backwardSweep tracks the cancelable resolve_tree attempts fired
// after each window, per spec.md §4.7 step 4.
type backwardSweep struct {
	store  storage.Store
	blocks BlockSink

	mu       sync.Mutex
	attempts []*resolveAttempt
}

func (s *backwardSweep) fireResolve(parent context.Context, root cid.Cid) {
	attemptCtx, cancel := context.WithCancel(parent)
	a := &resolveAttempt{cancel: cancel, result: make(chan resolveResult, 1)}

	s.mu.Lock()
	s.attempts = append(s.attempts, a)
	s.mu.Unlock()

	go func() {
		// BlockSink's Get signature already matches dagresolver.BlockSource.
		leaves, err := dagresolver.ResolveTree(attemptCtx, root, s.blocks)
		a.result <- resolveResult{leaves: leaves, err: err}
	}()
}

func (s *backwardSweep) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		a.cancel()
	}
}

// checkForSuccess drains every attempt that has finished so far and
// returns the first successful result, if any.
func (s *backwardSweep) checkForSuccess() ([][]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		select {
		case res := <-a.result:
			if res.err == nil {
				return res.leaves, true
			}
		default:
		}
	}
	return nil, false
}

// fillFromResolvedLeaves writes any leaf the resolver recovered whose
// full record isn't yet in storage. Only :newData is guaranteed
// available this way; spec.md §4.3 defines "leaf is in the DB" purely
// by :newData presence, so that's sufficient for the gap detector.
func fillFromResolvedLeaves(ctx context.Context, store storage.Store, leaves [][]byte) error {
	for i, payload := range leaves {
		idx := uint64(i)
		_, ok, err := storage.GetLeaf(ctx, store, idx)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := storage.PutLeaf(ctx, store, idx, storage.LeafRecord{NewData: payload}); err != nil {
			return err
		}
	}
	return nil
}

// finishSweep runs the gap detector and persists, per spec.md §4.7
// steps 4 and 6.
func finishSweep(ctx context.Context, store storage.Store, highestIndex uint64) error {
	const op = "reconcile.finishSweep"
	gaps, err := storage.Gaps(ctx, store, highestIndex)
	if err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	if len(gaps) > 0 {
		logging.Sugar.Errorw("backward sweep finished with gaps", "gaps", gaps)
		return accerr.Newf(accerr.Invariant, op, "%d gaps remain after sweep", len(gaps))
	}
	if err := store.Persist(ctx); err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	return nil
}
