package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIteratePrefix(t *testing.T) {
	ctx := context.Background()
	s := newOpenMemory(t)
	require.NoError(t, s.Put(ctx, "leaf:0:newData", "aa"))
	require.NoError(t, s.Put(ctx, "leaf:1:newData", "bb"))
	require.NoError(t, s.Put(ctx, "dag:trail:maxIndex", "0"))

	ch, err := s.Iterate(ctx, "leaf:")
	require.NoError(t, err)
	var keys []string
	for kv := range ch {
		keys = append(keys, kv.Key)
	}
	assert.ElementsMatch(t, []string{"leaf:0:newData", "leaf:1:newData"}, keys)
}

func TestJSONFilePersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	s := NewJSONFile(path)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Put(ctx, "leaf:0:newData", "aa"))
	require.NoError(t, s.Persist(ctx))

	_, err := os.Stat(path)
	require.NoError(t, err)

	reopened := NewJSONFile(path)
	require.NoError(t, reopened.Open(ctx))
	v, ok, err := reopened.Get(ctx, "leaf:0:newData")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "aa", v)
}

func TestJSONFileOpenMissingFileIsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	s := NewJSONFile(path)
	require.NoError(t, s.Open(ctx))
	_, ok, err := s.Get(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}
