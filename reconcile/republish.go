package reconcile

import (
	"context"

	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/internal/logging"
	"github.com/Austin-Williams/cid-accumulator-client/storage"
)

// RepublishResult summarizes an operator-initiated re-pin sweep.
type RepublishResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Republish re-pushes every block in the DAG trail log to the block
// client, from index 0 through dag:trail:maxIndex, per spec.md §6's
// operator-initiated re-pin operation. A single block's failure is
// logged and counted but never aborts the sweep.
func (p *Pipeline) Republish(ctx context.Context) (RepublishResult, error) {
	const op = "reconcile.Republish"

	var result RepublishResult
	if p.blocks == nil || !p.blocks.CanPut() {
		return result, accerr.Newf(accerr.ConfigError, op, "block client does not support put")
	}

	maxIndex, err := storage.MaxTrailIndex(ctx, p.store)
	if err != nil {
		return result, accerr.New(accerr.Transport, op, err)
	}
	if maxIndex < 0 {
		return result, nil
	}

	for i := uint64(0); i <= uint64(maxIndex); i++ {
		block, ok, err := storage.GetTrailPair(ctx, p.store, i)
		if err != nil {
			return result, accerr.New(accerr.Transport, op, err)
		}
		if !ok {
			logging.Sugar.Warnw("republish: missing trail index", "index", i)
			continue
		}
		result.Attempted++

		if err := p.blocks.Put(ctx, block.Cid, block.Encoded); err != nil {
			logging.Sugar.Warnw("republish: put failed", "cid", block.Cid.String(), "err", err)
			result.Failed++
			continue
		}
		if p.blocks.CanProvide() {
			p.blocks.Provide(ctx, block.Cid)
		}
		result.Succeeded++
	}
	return result, nil
}
