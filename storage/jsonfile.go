package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// JSONFile is a Store backed by a single JSON-encoded snapshot file,
// loaded wholesale into memory on Open and rewritten wholesale on
// Persist. It exists for small/dev deployments that want a persistent
// store without the operational weight of an embedded database — the
// same tradeoff the teacher pack's own flat-file massif storage makes
// for its log segments.
type JSONFile struct {
	path string

	mu   sync.Mutex
	data map[string]string
}

// NewJSONFile returns a JSONFile store that will load from and persist
// to path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

func (f *JSONFile) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data = map[string]string{}
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("storage: open %s: %w", f.path, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &f.data); err != nil {
		return fmt.Errorf("storage: decode %s: %w", f.path, err)
	}
	return nil
}

func (f *JSONFile) Close(ctx context.Context) error {
	return f.Persist(ctx)
}

func (f *JSONFile) Persist(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persistLocked()
}

func (f *JSONFile) persistLocked() error {
	b, err := json.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", f.path, err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, f.path)
}

func (f *JSONFile) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *JSONFile) Put(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *JSONFile) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *JSONFile) Iterate(ctx context.Context, prefix string) (<-chan KV, error) {
	f.mu.Lock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]KV, len(keys))
	for i, k := range keys {
		pairs[i] = KV{Key: k, Value: f.data[k]}
	}
	f.mu.Unlock()

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
