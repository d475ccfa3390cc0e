package dataset

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Austin-Williams/cid-accumulator-client/chain"
	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/mmr"
	"github.com/Austin-Williams/cid-accumulator-client/reconcile"
	"github.com/Austin-Williams/cid-accumulator-client/storage"
)

// fakeChain and fakeBlocks are local, minimal stand-ins for
// reconcile.ChainSource/BlockSink: reconcile's own fakes are
// unexported and package-private, so Data's tests need their own.
type fakeChain struct{}

func (fakeChain) State(ctx context.Context) (chain.StateWord, []cid.Cid, error) {
	return chain.StateWord{}, nil, nil
}
func (fakeChain) RootCID(ctx context.Context) (cid.Cid, error) { return cid.NullCID, nil }
func (fakeChain) FetchLogs(ctx context.Context, from, to uint64) ([]*chain.LeafAppendedEvent, error) {
	return nil, nil
}
func (fakeChain) SubscribeNewHeads(ctx context.Context) (chain.Subscription, error) {
	return nil, context.Canceled
}

type fakeBlocks struct{}

func (fakeBlocks) Get(ctx context.Context, id cid.Cid) ([]byte, error) { return nil, nil }
func (fakeBlocks) Put(ctx context.Context, id cid.Cid, encoded []byte) error { return nil }
func (fakeBlocks) Provide(ctx context.Context, id cid.Cid)                  {}
func (fakeBlocks) CanPut() bool                                             { return false }
func (fakeBlocks) CanProvide() bool                                         { return false }

func newTestData(t *testing.T) *Data {
	t.Helper()
	store := storage.NewMemory()
	require.NoError(t, store.Open(context.Background()))
	engine := mmr.New()
	pipeline := reconcile.New(fakeChain{}, fakeBlocks{}, store, engine, reconcile.Options{})
	return &Data{store: store, engine: engine, pipeline: pipeline}
}

func appendLeaves(t *testing.T, d *Data, payloads ...string) {
	t.Helper()
	for i, p := range payloads {
		ev := &chain.LeafAppendedEvent{
			LeafIndex:           uint32(i),
			PreviousAppendBlock: 0,
			NewData:             []byte(p),
			BlockNumber:         uint64(i + 1),
		}
		require.NoError(t, d.pipeline.ProcessNewLeafEvent(context.Background(), ev))
	}
}

func TestDataHighestIndexEmptyIsNegativeOne(t *testing.T) {
	d := newTestData(t)
	h, err := d.HighestIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), h)
}

func TestDataGetAndHighestIndexAfterAppend(t *testing.T) {
	d := newTestData(t)
	appendLeaves(t, d, "alpha", "beta", "gamma")

	h, err := d.HighestIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), h)

	leaf, ok, err := d.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("beta"), leaf.NewData)
	assert.Equal(t, uint64(1), leaf.Index)

	_, ok, err = d.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDataRangeInclusiveAndEmptyWhenInverted(t *testing.T) {
	d := newTestData(t)
	appendLeaves(t, d, "a", "b", "c")

	leaves, err := d.Range(context.Background(), 0, 2)
	require.NoError(t, err)
	require.Len(t, leaves, 3)
	assert.Equal(t, []byte("a"), leaves[0].NewData)
	assert.Equal(t, []byte("c"), leaves[2].NewData)

	empty, err := d.Range(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDataIterateStreamsInOrder(t *testing.T) {
	d := newTestData(t)
	appendLeaves(t, d, "x", "y", "z")

	ch, err := d.Iterate(context.Background())
	require.NoError(t, err)

	var got []string
	for leaf := range ch {
		got = append(got, string(leaf.NewData))
	}
	assert.Equal(t, []string{"x", "y", "z"}, got)
}

func TestDataSubscribeReceivesNewLeaves(t *testing.T) {
	d := newTestData(t)

	var seen []string
	unsub := d.Subscribe(func(index uint64, hexNewData string) {
		seen = append(seen, hexNewData)
	})
	defer unsub()

	appendLeaves(t, d, "one", "two")
	require.Len(t, seen, 2)
	assert.Equal(t, hex.EncodeToString([]byte("one")), seen[0])
}

func TestDataIndexByPayloadSliceGroupsByField(t *testing.T) {
	d := newTestData(t)
	appendLeaves(t, d, "AAxx", "AAyy", "BByy")

	idx, err := d.IndexByPayloadSlice(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0", "1"}, idx[hex.EncodeToString([]byte("AA"))])
	assert.ElementsMatch(t, []string{"2"}, idx[hex.EncodeToString([]byte("BB"))])
}

func TestDataDumpReflectsLeafCountAndLeaves(t *testing.T) {
	d := newTestData(t)
	appendLeaves(t, d, "p", "q")

	dump, err := d.Dump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), dump.LeafCount)
	require.Len(t, dump.Leaves, 2)
	assert.NotEmpty(t, dump.Peaks)
}

func TestDataDumpEmptyHasNoLeaves(t *testing.T) {
	d := newTestData(t)
	dump, err := d.Dump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), dump.LeafCount)
	assert.Empty(t, dump.Leaves)
}
