package mmr

import "github.com/Austin-Williams/cid-accumulator-client/cid"

// PreviousRootAndPeaks is the static inverse of Append: given the peak
// set an append left behind, the payload it appended, and the event's
// recorded left_inputs (lowest height first, per spec.md §3), it
// reconstructs the root and peaks the MMR had immediately before that
// append.
//
// When left_inputs is empty the append didn't trigger any merge: it
// simply pushed a new height-0 peak, so the previous peaks are
// peaksAfter with that trailing peak removed.
//
// Otherwise, the forward cascade popped peaksBefore's trailing entries
// one by one — lowest height first — merging each into the running
// carry, and finally pushed the single resulting peak. So peaksBefore
// is exactly peaksAfter's stable left portion (everything but the new
// last peak) followed by left_inputs in reverse (highest popped height
// first, restoring the original left-to-right descending-height order).
func PreviousRootAndPeaks(peaksAfter []cid.Cid, payload []byte, leftInputs []cid.Cid) (cid.Cid, []cid.Cid, error) {
	if len(peaksAfter) == 0 {
		return cid.Cid{}, nil, nil
	}

	prevPeaks := make([]cid.Cid, 0, len(peaksAfter)+len(leftInputs))
	if len(leftInputs) == 0 {
		prevPeaks = append(prevPeaks, peaksAfter[:len(peaksAfter)-1]...)
	} else {
		prevPeaks = append(prevPeaks, peaksAfter[:len(peaksAfter)-1]...)
		for i := len(leftInputs) - 1; i >= 0; i-- {
			prevPeaks = append(prevPeaks, leftInputs[i])
		}

		// Defensive cleanup per spec.md §4.2: a fresh leaf CID should
		// never survive into prevPeaks, since left_inputs only ever
		// records popped *pre-existing* peaks, not the new leaf. Guard
		// against it anyway so a malformed left_inputs doesn't silently
		// corrupt the reconstructed state.
		leafBlock, err := cid.EncodeLeaf(payload)
		if err != nil {
			return cid.Cid{}, nil, err
		}
		if n := len(prevPeaks); n > 0 && prevPeaks[n-1].Equals(leafBlock.Cid) {
			prevPeaks = prevPeaks[:n-1]
		}
	}

	prevRoot, _, err := BagPeaks(prevPeaks)
	if err != nil {
		return cid.Cid{}, nil, err
	}
	return prevRoot, prevPeaks, nil
}
