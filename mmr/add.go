package mmr

import (
	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
)

// Append commits the next leaf, per spec.md §4.2:
//
//  1. leafIndex must equal LeafCount, or this is an out-of-order append.
//  2. The leaf's dag-cbor block is produced and becomes the trail's first
//     entry.
//  3. While the bit of LeafCount at the current height is set, the
//     rightmost peak is popped and merged with the running carry into a
//     new link, height by height, each producing a trail entry.
//  4. The final carry becomes the new rightmost peak; LeafCount
//     increments.
//  5. The peaks are bagged left-to-right to recompute the root; every
//     bagging link is appended to the trail.
//
// The returned trail is leaf-first, then merge links in ascending
// height order, then bagging links in left-to-right order — exactly the
// order spec.md §4.2 specifies, and the order subscribers observe it in.
func (m *Mmr) Append(leafIndex uint64, payload []byte) ([]cid.Block, error) {
	if leafIndex != m.LeafCount {
		return nil, accerr.Newf(accerr.OutOfOrder, "mmr.Append",
			"expected leaf index %d, got %d", m.LeafCount, leafIndex)
	}

	leafBlock, err := cid.EncodeLeaf(payload)
	if err != nil {
		return nil, err
	}
	trail := []cid.Block{leafBlock}

	carry := leafBlock.Cid
	height := uint(0)
	for m.LeafCount&(1<<height) != 0 {
		left := m.Peaks[len(m.Peaks)-1]
		m.Peaks = m.Peaks[:len(m.Peaks)-1]

		link, err := cid.EncodeLink(left, carry)
		if err != nil {
			return nil, err
		}
		trail = append(trail, link)
		carry = link.Cid
		height++
	}
	m.Peaks = append(m.Peaks, carry)
	m.LeafCount++

	if len(m.Peaks) > 32 {
		return nil, accerr.Newf(accerr.Invariant, "mmr.Append", "peak count %d exceeds 32", len(m.Peaks))
	}

	_, baggingLinks, err := BagPeaks(m.Peaks)
	if err != nil {
		return nil, err
	}
	trail = append(trail, baggingLinks...)

	m.notify(trail)
	return trail, nil
}

// LeftInputs replays the same merge cascade Append would run, returning
// only the sequence of popped left operands (lowest height first) — the
// left_inputs an AppendedEvent records. Tests use it to build events
// whose left_inputs match what this engine itself produces.
func LeftInputs(peaksBefore []cid.Cid, leafCountBefore uint64) []cid.Cid {
	var left []cid.Cid
	height := uint(0)
	remaining := append([]cid.Cid{}, peaksBefore...)
	for leafCountBefore&(1<<height) != 0 {
		left = append(left, remaining[len(remaining)-1])
		remaining = remaining[:len(remaining)-1]
		height++
	}
	return left
}
