package reconcile

import (
	"context"

	"github.com/Austin-Williams/cid-accumulator-client/chain"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/internal/logging"
	"github.com/Austin-Williams/cid-accumulator-client/mmr"
	"github.com/Austin-Williams/cid-accumulator-client/storage"
)

// ProcessNewLeafEvent commits ev, per spec.md §4.7's per-event path.
// A duplicate event (one the DB and MMR have already both absorbed) is
// a no-op. Events arriving ahead of the DB's contiguous frontier are
// first walked back one previous_append_block hop at a time until the
// gap closes; events arriving ahead of the MMR's frontier are replayed
// from the now-contiguous DB records before ev itself is appended.
func (p *Pipeline) ProcessNewLeafEvent(ctx context.Context, ev *chain.LeafAppendedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processNewLeafEventLocked(ctx, ev)
}

func (p *Pipeline) processNewLeafEventLocked(ctx context.Context, ev *chain.LeafAppendedEvent) error {
	const op = "reconcile.ProcessNewLeafEvent"

	H, err := storage.HighestContiguousLeafIndexWithData(ctx, p.store)
	if err != nil {
		return accerr.New(accerr.Transport, op, err)
	}

	if int64(ev.LeafIndex) <= H && uint64(ev.LeafIndex) < p.mmr.LeafCount {
		return nil // already absorbed by both DB and MMR
	}

	if err := p.fillDBGap(ctx, ev, H); err != nil {
		return err
	}
	if err := p.putEventLeaf(ctx, ev); err != nil {
		return err
	}
	if err := p.replayMMRTo(ctx, uint64(ev.LeafIndex)); err != nil {
		return err
	}

	return p.sanityCheckRootIfCaughtUp(ctx)
}

// sanityCheckRootIfCaughtUp runs sanityCheckRoot only once the MMR has
// caught all the way up to the chain's current leaf count, per spec.md
// §4.7: "Post-sanity: if fully caught up (H_mmr+1 == leaf_count_on_chain),
// compare...". Any earlier leaf in a live-sync backlog or a gap-fill
// replay is, by construction, behind the chain's current state and
// can't match its current root yet, so checking there would only ever
// produce a false-positive mismatch.
func (p *Pipeline) sanityCheckRootIfCaughtUp(ctx context.Context) error {
	state, _, err := p.chain.State(ctx)
	if err != nil {
		logging.Sugar.Warnw("post-commit root sanity check: could not fetch chain state", "err", err)
		return nil
	}
	if p.mmr.LeafCount != state.LeafCount {
		return nil
	}
	return p.sanityCheckRoot(ctx)
}

// fillDBGap walks backward from ev one previous_append_block hop at a
// time, fetching and storing each intermediate leaf, until the DB's
// contiguous frontier reaches ev.LeafIndex-1. Each hop costs one RPC,
// per spec.md §4.7.
func (p *Pipeline) fillDBGap(ctx context.Context, ev *chain.LeafAppendedEvent, H int64) error {
	const op = "reconcile.fillDBGap"

	if int64(ev.LeafIndex) <= H+1 {
		return nil
	}

	missing := []*chain.LeafAppendedEvent{}
	cursorBlock := ev.PreviousAppendBlock
	cursorIndex := int64(ev.LeafIndex) - 1

	for cursorIndex > H {
		events, err := p.chain.FetchLogs(ctx, uint64(cursorBlock), uint64(cursorBlock))
		if err != nil {
			return accerr.New(accerr.Transport, op, err)
		}
		var found *chain.LeafAppendedEvent
		for _, e := range events {
			if int64(e.LeafIndex) == cursorIndex {
				found = e
				break
			}
		}
		if found == nil {
			return accerr.Newf(accerr.Invariant, op, "no LeafAppended at index %d in block %d", cursorIndex, cursorBlock)
		}
		missing = append(missing, found)
		cursorBlock = found.PreviousAppendBlock
		cursorIndex--
	}

	for i := len(missing) - 1; i >= 0; i-- {
		if err := p.putEventLeaf(ctx, missing[i]); err != nil {
			return err
		}
	}
	return nil
}

// putEventLeaf writes ev's DB record without touching the MMR.
// RootCIDBeforeAppend and PeaksWithHeightsBeforeAppend are left unset
// here; they are only known precisely for leaves the MMR has actually
// walked through, which replayMMRTo backfills as it catches up.
func (p *Pipeline) putEventLeaf(ctx context.Context, ev *chain.LeafAppendedEvent) error {
	return storage.PutLeaf(ctx, p.store, uint64(ev.LeafIndex), storage.LeafRecord{
		NewData:     ev.NewData,
		Event:       ev,
		BlockNumber: ev.BlockNumber,
	})
}

// replayMMRTo advances the in-memory MMR, and the DAG trail log, up to
// and including leafIndex, reading any leaves it hasn't yet seen back
// out of storage. Per spec.md §4.7's "MMR-side replay from DB when
// event.leaf_index > H_mmr+1."
func (p *Pipeline) replayMMRTo(ctx context.Context, leafIndex uint64) error {
	const op = "reconcile.replayMMRTo"

	for p.mmr.LeafCount <= leafIndex {
		index := p.mmr.LeafCount

		rec, ok, err := storage.GetLeaf(ctx, p.store, index)
		if err != nil {
			return accerr.New(accerr.Transport, op, err)
		}
		if !ok {
			return accerr.Newf(accerr.Invariant, op, "missing DB record for leaf %d during replay", index)
		}

		peaksBefore, err := p.mmr.Snapshot()
		if err != nil {
			return accerr.New(accerr.Invariant, op, err)
		}
		rootBefore, _, err := mmr.BagPeaks(p.mmr.Peaks)
		if err != nil {
			return accerr.New(accerr.Invariant, op, err)
		}

		trail, err := p.mmr.Append(index, rec.NewData)
		if err != nil {
			return accerr.New(accerr.Invariant, op, err)
		}

		if !rec.RootCIDBeforeAppend.Defined() || len(rec.PeaksWithHeightsBeforeAppend) == 0 {
			if err := storage.PutLeaf(ctx, p.store, index, storage.LeafRecord{
				NewData:                      rec.NewData,
				Event:                        rec.Event,
				BlockNumber:                  rec.BlockNumber,
				RootCIDBeforeAppend:          rootBefore,
				PeaksWithHeightsBeforeAppend: peaksBefore,
			}); err != nil {
				return err
			}
		}

		for _, block := range trail {
			if err := storage.AppendTrailPair(ctx, p.store, block); err != nil {
				return err
			}
		}

		p.notifyLeaf(index, rec.NewData)

		if p.blocks != nil && p.blocks.CanPut() {
			for _, block := range trail {
				if err := p.blocks.Put(ctx, block.Cid, block.Encoded); err != nil {
					logging.Sugar.Warnw("block client put failed", "cid", block.Cid.String(), "err", err)
					continue
				}
				if p.blocks.CanProvide() {
					p.blocks.Provide(ctx, block.Cid)
				}
			}
		}
	}
	return nil
}

// sanityCheckRoot compares the in-memory MMR's root against the
// chain's own root_cid() once the MMR has caught all the way up,
// logging any mismatch rather than failing the commit, per spec.md
// §4.7's "post-sanity root comparison."
func (p *Pipeline) sanityCheckRoot(ctx context.Context) error {
	chainRoot, err := p.chain.RootCID(ctx)
	if err != nil {
		logging.Sugar.Warnw("post-commit root sanity check: could not fetch chain root", "err", err)
		return nil
	}
	localRoot, err := p.mmr.Root()
	if err != nil {
		logging.Sugar.Warnw("post-commit root sanity check: could not compute local root", "err", err)
		return nil
	}
	if localRoot != chainRoot {
		logging.Sugar.Errorw("post-commit root mismatch", "local", localRoot.String(), "chain", chainRoot.String())
	}
	return nil
}
