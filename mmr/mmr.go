package mmr

import (
	"fmt"

	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
)

// Peak pairs a peak's CID with its height, for snapshots that need to be
// stored (spec.md §3, LeafRecord.peaks_with_heights_before_append). The
// engine itself never stores heights — see PeaksWithHeights.
type Peak struct {
	Cid    cid.Cid
	Height uint8
}

// Mmr is the live accumulator state: the current peaks, left to right in
// strictly decreasing height order, and the number of leaves appended so
// far.
type Mmr struct {
	Peaks     []cid.Cid
	LeafCount uint64

	subs []subscription
}

type subscription struct {
	id int
	fn func(trail []cid.Block)
}

// New returns an empty Mmr (LeafCount 0, no peaks).
func New() *Mmr {
	return &Mmr{}
}

// PeaksWithHeights zips peaks with their heights, derived from
// leafCount's set bits (most significant first, matching the
// descending-height left-to-right peak ordering).
func PeaksWithHeights(peaks []cid.Cid, leafCount uint64) ([]Peak, error) {
	heights := SetBits(leafCount)
	if len(heights) != len(peaks) {
		return nil, accerr.New(accerr.Invariant, "mmr.PeaksWithHeights",
			fmt.Errorf("leaf_count %d implies %d peaks, got %d", leafCount, len(heights), len(peaks)))
	}
	out := make([]Peak, len(peaks))
	for i, p := range peaks {
		out[i] = Peak{Cid: p, Height: heights[i]}
	}
	return out, nil
}

// Snapshot returns the engine's current peaks paired with their heights.
func (m *Mmr) Snapshot() ([]Peak, error) {
	return PeaksWithHeights(m.Peaks, m.LeafCount)
}
