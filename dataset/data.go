package dataset

import (
	"context"

	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/mmr"
	"github.com/Austin-Williams/cid-accumulator-client/reconcile"
	"github.com/Austin-Williams/cid-accumulator-client/storage"
)

// Data is the read-side view spec.md §6 hands callers: Dataset.Data()
// returns one, and it stays valid for the lifetime of the Dataset.
type Data struct {
	store    storage.Store
	engine   *mmr.Mmr
	pipeline *reconcile.Pipeline
}

// Leaf is the public view of a stored leaf: the accumulated payload
// plus the MMR state immediately before it was appended.
type Leaf struct {
	Index                     uint64
	NewData                   []byte
	BlockNumber               uint64
	RootCIDBeforeAppend       cid.Cid
	PeaksWithHeightsBeforeAppend []mmr.Peak
}

// HighestIndex returns the highest leaf index for which contiguous
// data (index 0 through it, with no gaps) is present in storage, or -1
// if none is.
func (d *Data) HighestIndex(ctx context.Context) (int64, error) {
	return storage.HighestContiguousLeafIndexWithData(ctx, d.store)
}

// Get returns the leaf at i, or ok=false if it hasn't been stored yet.
func (d *Data) Get(ctx context.Context, i uint64) (Leaf, bool, error) {
	const op = "dataset.Data.Get"
	rec, ok, err := storage.GetLeaf(ctx, d.store, i)
	if err != nil {
		return Leaf{}, false, accerr.New(accerr.Transport, op, err)
	}
	if !ok {
		return Leaf{}, false, nil
	}
	return leafFromRecord(i, rec), true, nil
}

// Range returns the stored leaves in [from, to], inclusive, in index
// order. It stops at the first index in the range that has no stored
// leaf, so leaves after a gap are not returned. An empty
// slice (not an error) is returned when from > to, mirroring a closed
// interval that's empty by construction rather than a misuse.
func (d *Data) Range(ctx context.Context, from, to uint64) ([]Leaf, error) {
	const op = "dataset.Data.Range"
	if from > to {
		return nil, nil
	}
	out := make([]Leaf, 0, to-from+1)
	for i := from; i <= to; i++ {
		rec, ok, err := storage.GetLeaf(ctx, d.store, i)
		if err != nil {
			return nil, accerr.New(accerr.Transport, op, err)
		}
		if !ok {
			break
		}
		out = append(out, leafFromRecord(i, rec))
	}
	return out, nil
}

// Iterate streams every contiguously-stored leaf from 0 up through
// HighestIndex, in order, on the returned channel. The channel is
// closed once the walk completes or ctx is canceled.
func (d *Data) Iterate(ctx context.Context) (<-chan Leaf, error) {
	h, err := d.HighestIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan Leaf)
	go func() {
		defer close(out)
		for i := int64(0); i <= h; i++ {
			rec, ok, err := storage.GetLeaf(ctx, d.store, uint64(i))
			if err != nil || !ok {
				return
			}
			select {
			case out <- leafFromRecord(uint64(i), rec):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Subscribe registers fn to be called after each newly committed leaf.
// The returned Unsubscribe removes fn; calling it more than once is a
// no-op.
func (d *Data) Subscribe(fn reconcile.LeafSubscriber) reconcile.Unsubscribe {
	return d.pipeline.SubscribeLeaves(fn)
}

// IndexByPayloadSlice groups every stored leaf index by the hex value
// of newData[offset:offset+length], for callers indexing payloads by a
// known field layout.
func (d *Data) IndexByPayloadSlice(ctx context.Context, offset, length int) (map[string][]string, error) {
	const op = "dataset.Data.IndexByPayloadSlice"
	idx, err := storage.CreateIndexByPayloadSlice(ctx, d.store, offset, length)
	if err != nil {
		return nil, accerr.New(accerr.Transport, op, err)
	}
	return idx, nil
}

// Dump is a full snapshot: the MMR's current peaks-with-heights plus
// every contiguously-stored leaf, for diagnostics and tests.
type Dump struct {
	LeafCount uint64
	Peaks     []mmr.Peak
	Leaves    []Leaf
}

func (d *Data) Dump(ctx context.Context) (Dump, error) {
	const op = "dataset.Data.Dump"
	peaks, err := d.engine.Snapshot()
	if err != nil {
		return Dump{}, accerr.New(accerr.Invariant, op, err)
	}
	h, err := d.HighestIndex(ctx)
	if err != nil {
		return Dump{}, err
	}
	var leaves []Leaf
	if h >= 0 {
		leaves, err = d.Range(ctx, 0, uint64(h))
		if err != nil {
			return Dump{}, err
		}
	}
	return Dump{LeafCount: d.engine.LeafCount, Peaks: peaks, Leaves: leaves}, nil
}

func leafFromRecord(i uint64, rec storage.LeafRecord) Leaf {
	return Leaf{
		Index:                        i,
		NewData:                      rec.NewData,
		BlockNumber:                  rec.BlockNumber,
		RootCIDBeforeAppend:          rec.RootCIDBeforeAppend,
		PeaksWithHeightsBeforeAppend: rec.PeaksWithHeightsBeforeAppend,
	}
}
