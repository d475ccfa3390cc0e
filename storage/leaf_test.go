package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/mmr"
)

func newOpenMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	require.NoError(t, m.Open(context.Background()))
	return m
}

func TestPutGetLeafRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newOpenMemory(t)

	rec := LeafRecord{
		NewData:                     []byte("hello"),
		BlockNumber:                 42,
		RootCIDBeforeAppend:         cid.NullCID,
		PeaksWithHeightsBeforeAppend: []mmr.Peak{{Cid: cid.NullCID, Height: 0}},
	}
	require.NoError(t, PutLeaf(ctx, s, 0, rec))

	got, ok, err := GetLeaf(ctx, s, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.NewData, got.NewData)
	assert.Equal(t, rec.BlockNumber, got.BlockNumber)
	assert.True(t, rec.RootCIDBeforeAppend.Equals(got.RootCIDBeforeAppend))
	require.Len(t, got.PeaksWithHeightsBeforeAppend, 1)
	assert.Equal(t, uint8(0), got.PeaksWithHeightsBeforeAppend[0].Height)
}

func TestGetLeafMissing(t *testing.T) {
	ctx := context.Background()
	s := newOpenMemory(t)
	_, ok, err := GetLeaf(ctx, s, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHighestContiguousLeafIndexWithData(t *testing.T) {
	ctx := context.Background()
	s := newOpenMemory(t)

	n, err := HighestContiguousLeafIndexWithData(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, PutLeaf(ctx, s, i, LeafRecord{NewData: []byte{byte(i)}}))
	}
	n, err = HighestContiguousLeafIndexWithData(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// A gap at 3 caps contiguity even though 4 exists.
	require.NoError(t, PutLeaf(ctx, s, 4, LeafRecord{NewData: []byte{4}}))
	n, err = HighestContiguousLeafIndexWithData(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGaps(t *testing.T) {
	ctx := context.Background()
	s := newOpenMemory(t)
	require.NoError(t, PutLeaf(ctx, s, 0, LeafRecord{NewData: []byte{0}}))
	require.NoError(t, PutLeaf(ctx, s, 2, LeafRecord{NewData: []byte{2}}))

	gaps, err := Gaps(ctx, s, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, gaps)
}

func TestCreateIndexByPayloadSlice(t *testing.T) {
	ctx := context.Background()
	s := newOpenMemory(t)
	require.NoError(t, PutLeaf(ctx, s, 0, LeafRecord{NewData: []byte("AAAXYZ")}))
	require.NoError(t, PutLeaf(ctx, s, 1, LeafRecord{NewData: []byte("BBBXYZ")}))
	require.NoError(t, PutLeaf(ctx, s, 2, LeafRecord{NewData: []byte("CCCXYZ")}))

	index, err := CreateIndexByPayloadSlice(ctx, s, 3, 3)
	require.NoError(t, err)
	key := "58595a" // hex("XYZ")
	require.Contains(t, index, key)
	assert.ElementsMatch(t, []string{"0", "1", "2"}, index[key])
}
