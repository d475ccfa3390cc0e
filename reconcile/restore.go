package reconcile

import (
	"context"

	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/storage"
)

// RestoreFromStorage rebuilds the in-memory MMR from whatever
// contiguous leaf data storage already holds, for reopening a dataset
// that was populated by a previous run. It's a no-op on an empty
// store. Call it once, right after New, before Start.
func (p *Pipeline) RestoreFromStorage(ctx context.Context) error {
	const op = "reconcile.RestoreFromStorage"

	p.mu.Lock()
	defer p.mu.Unlock()

	H, err := storage.HighestContiguousLeafIndexWithData(ctx, p.store)
	if err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	if H < 0 {
		return nil
	}
	return p.replayMMRTo(ctx, uint64(H))
}
