// Package dataset is the public API this module exposes upward to any
// thin CLI or service wrapper, per spec.md §6: Open/Start/Shutdown on
// the Dataset itself, and Get/Range/Subscribe/Iterate/
// IndexByPayloadSlice/Dump/HighestIndex on the Data view it hands
// back. It is the only package outside callers are expected to import
// directly; everything underneath (chain, blockclient, storage, mmr,
// dagresolver, reconcile) is a supporting collaborator wired together
// here.
package dataset
