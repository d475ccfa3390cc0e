package storage

import (
	"context"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a Store backed by syndtr/goleveldb, for real embedded
// on-disk deployments. Unlike Memory and JSONFile it doesn't hold a
// full copy in process memory — every Get/Put/Iterate goes straight to
// the LSM tree, which is what makes it suitable for datasets too large
// to keep as a single in-memory map.
type LevelDB struct {
	path string
	db   *leveldb.DB
}

// NewLevelDB returns a LevelDB store rooted at path. Open must be
// called before use.
func NewLevelDB(path string) *LevelDB {
	return &LevelDB{path: path}
}

func (l *LevelDB) Open(ctx context.Context) error {
	db, err := leveldb.OpenFile(l.path, nil)
	if err != nil {
		return fmt.Errorf("storage: open leveldb at %s: %w", l.path, err)
	}
	l.db = db
	return nil
}

func (l *LevelDB) Close(ctx context.Context) error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Persist is a no-op: goleveldb durably writes through its WAL on
// every Put, so there is nothing to flush beyond Close.
func (l *LevelDB) Persist(ctx context.Context) error { return nil }

func (l *LevelDB) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := l.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return string(v), true, nil
}

func (l *LevelDB) Put(ctx context.Context, key, value string) error {
	if err := l.db.Put([]byte(key), []byte(value), nil); err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

func (l *LevelDB) Delete(ctx context.Context, key string) error {
	if err := l.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (l *LevelDB) Iterate(ctx context.Context, prefix string) (<-chan KV, error) {
	out := make(chan KV)
	go func() {
		defer close(out)
		iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		defer iter.Release()
		for iter.Next() {
			select {
			case <-ctx.Done():
				return
			case out <- KV{Key: string(iter.Key()), Value: string(iter.Value())}:
			}
		}
	}()
	return out, nil
}
