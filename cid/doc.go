// Package cid implements the narrow slice of IPLD this system needs: CIDv1
// values over codec 0x71 (dag-cbor) and hash algorithm 0x12 (sha2-256), and
// the dag-cbor encoding of the three node shapes the MMR engine produces —
// a raw byte-string leaf, a {L,R} link map, and the tag-42 CID link that
// glues them together.
//
// It deliberately does not implement general dag-cbor. Anything outside
// integers, byte/text strings, arrays, string-keyed maps, bool/null,
// float64 and tag 42 is out of scope, per spec.md §4.1.
package cid
