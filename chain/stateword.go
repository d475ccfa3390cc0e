package chain

import (
	"math/big"

	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/cid"
)

// StateWord is the decoded form of the contract's packed 256-bit state
// word, per spec.md §4.4: 32 5-bit peak heights (bits 0-159), peak_count
// (160-164), leaf_count (165-196), previous_append_block (197-228),
// deploy_block (229-255).
type StateWord struct {
	PeakHeights          [32]uint8
	PeakCount            uint8
	LeafCount            uint64
	PreviousAppendBlock  uint64
	DeployBlock          uint64
}

// DecodeStateWord unpacks a 256-bit big-endian word as returned by the
// state() view call.
func DecodeStateWord(word [32]byte) StateWord {
	bi := new(big.Int).SetBytes(word[:])

	var sw StateWord
	for i := 0; i < 32; i++ {
		sw.PeakHeights[i] = uint8(bitsAt(bi, uint(i*5), 5))
	}
	sw.PeakCount = uint8(bitsAt(bi, 160, 5))
	sw.LeafCount = bitsAt(bi, 165, 32)
	sw.PreviousAppendBlock = bitsAt(bi, 197, 32)
	sw.DeployBlock = bitsAt(bi, 229, 27)
	return sw
}

// bitsAt extracts an n-bit field starting at bit offset off, little-
// endian bit order (bit 0 is the word's least significant bit).
func bitsAt(bi *big.Int, off, n uint) uint64 {
	mask := new(big.Int).Lsh(big.NewInt(1), n)
	mask.Sub(mask, big.NewInt(1))
	shifted := new(big.Int).Rsh(bi, off)
	shifted.And(shifted, mask)
	return shifted.Uint64()
}

// PeaksFromDigests wraps the raw peak digests a bulk view call returns
// (first PeakCount entries of the 32-entry array, MMR left-to-right
// order) as CIDs, without rehashing, per spec.md §4.4 ("Wrap the raw
// 32-byte digest as cidv1(0x71, multihash(0x12, digest)). Do not
// rehash.").
func PeaksFromDigests(digests [32][32]byte, peakCount uint8) ([]cid.Cid, error) {
	if int(peakCount) > len(digests) {
		return nil, accerr.Newf(accerr.Invariant, "chain.PeaksFromDigests", "peak count %d exceeds array length %d", peakCount, len(digests))
	}
	peaks := make([]cid.Cid, peakCount)
	for i := 0; i < int(peakCount); i++ {
		c, err := cid.Of(digests[i])
		if err != nil {
			return nil, accerr.New(accerr.Invariant, "chain.PeaksFromDigests", err)
		}
		peaks[i] = c
	}
	return peaks, nil
}
