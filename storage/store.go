package storage

import "context"

// KV is a single key/value pair, as yielded by Iterate.
type KV struct {
	Key   string
	Value string
}

// Store is the key/value contract spec.md §4.3 asks every persistence
// backend to satisfy. All domain helpers in this package (leaf.go,
// trail.go) are built purely in terms of this interface.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// Iterate streams every (key, value) pair whose key has the given
	// prefix, in unspecified order, terminating the stream via the
	// channel close. If ctx is canceled mid-iteration the channel is
	// closed without yielding further pairs.
	Iterate(ctx context.Context, prefix string) (<-chan KV, error)

	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Persist(ctx context.Context) error
}
