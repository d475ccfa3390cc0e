// Package dagresolver implements the depth-first DAG resolution of
// spec.md §4.6: given a root CID and a block source, walk the tree down
// to its leaves and concatenate their bytes, honoring cancellation at
// every fetch. Checking each fetched block against its claimed CID is
// the block source's job; the resolver trusts the bytes it gets back.
package dagresolver
