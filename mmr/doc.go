// Package mmr implements the append-only Merkle Mountain Range
// accumulator described in spec.md §4.2: a set of peaks, each the CID
// of the root of a perfect binary sub-tree, kept in strictly
// decreasing-height order and folded left-to-right ("bagged") to
// produce a single root.
//
// Unlike a position-indexed MMR that materializes every interior node
// in a flat append log, this engine stores only the current peaks —
// their heights are always derivable from LeafCount's bit pattern and
// are never stored directly. See bits.go for the bit-arithmetic helpers
// PeaksWithHeights relies on; Append tests LeafCount's bits inline.
package mmr
