package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store backed by a map, guarded by a mutex per
// spec.md §5's "storage adapter is the serialization point for
// persistence; implementations may hold an internal mutex."
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemory returns an empty, ready-to-use Memory store.
func NewMemory() *Memory {
	return &Memory{data: map[string]string{}}
}

func (m *Memory) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	return nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }
func (m *Memory) Persist(ctx context.Context) error { return nil }

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Iterate(ctx context.Context, prefix string) (<-chan KV, error) {
	m.mu.Lock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]KV, len(keys))
	for i, k := range keys {
		pairs[i] = KV{Key: k, Value: m.data[k]}
	}
	m.mu.Unlock()

	out := make(chan KV)
	go func() {
		defer close(out)
		for _, p := range pairs {
			select {
			case <-ctx.Done():
				return
			case out <- p:
			}
		}
	}()
	return out, nil
}
