package mmr

import "github.com/Austin-Williams/cid-accumulator-client/cid"

// BagPeaks folds peaks left-to-right by encoding {L: current, R: peak}
// links, producing the root and the ordered list of bagging-link blocks
// it had to write along the way (spec.md §4.2, "Peak bagging"). If
// peaks has a single element, that peak is the root and no links are
// produced. An empty peaks list bags to the well-known NullCID.
func BagPeaks(peaks []cid.Cid) (root cid.Cid, links []cid.Block, err error) {
	if len(peaks) == 0 {
		return cid.NullCID, nil, nil
	}
	root = peaks[0]
	for _, peak := range peaks[1:] {
		block, err := cid.EncodeLink(root, peak)
		if err != nil {
			return cid.Cid{}, nil, err
		}
		links = append(links, block)
		root = block.Cid
	}
	return root, links, nil
}

// Root returns the current MMR root without recording a trail.
func (m *Mmr) Root() (cid.Cid, error) {
	root, _, err := BagPeaks(m.Peaks)
	return root, err
}
