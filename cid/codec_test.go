package cid

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLeafDeterministic(t *testing.T) {
	b1, err := EncodeLeaf([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	b2, err := EncodeLeaf([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	assert.Equal(t, b1.Encoded, b2.Encoded)
	assert.True(t, b1.Cid.Equals(b2.Cid))
}

func TestEncodeLinkRoundtrips(t *testing.T) {
	leaf1, err := EncodeLeaf([]byte{0xAA})
	require.NoError(t, err)
	leaf2, err := EncodeLeaf([]byte{0xBB})
	require.NoError(t, err)

	link, err := EncodeLink(leaf1.Cid, leaf2.Cid)
	require.NoError(t, err)

	node, err := DecodeNode(link.Encoded)
	require.NoError(t, err)
	require.Equal(t, KindLink, node.Kind)
	assert.True(t, node.Link.L.Equals(leaf1.Cid))
	assert.True(t, node.Link.R.Equals(leaf2.Cid))
}

func TestDecodeNodeLeaf(t *testing.T) {
	block, err := EncodeLeaf([]byte("hello"))
	require.NoError(t, err)

	node, err := DecodeNode(block.Encoded)
	require.NoError(t, err)
	require.Equal(t, KindLeaf, node.Kind)
	assert.Equal(t, []byte("hello"), node.Leaf)
}

func TestDecodeNodeUnknownShape(t *testing.T) {
	_, err := DecodeNode([]byte{0x01}) // a bare unsigned int: none of our shapes
	assert.ErrorIs(t, err, ErrUnknownShape)
}

func TestVerifyCID(t *testing.T) {
	block, err := EncodeLeaf([]byte{0x42})
	require.NoError(t, err)

	assert.True(t, VerifyCID(block.Encoded, block.Cid))
	assert.NoError(t, VerifyCIDChecked(block.Encoded, block.Cid))

	other, err := EncodeLeaf([]byte{0x43})
	require.NoError(t, err)
	assert.False(t, VerifyCID(block.Encoded, other.Cid))
	assert.ErrorIs(t, VerifyCIDChecked(block.Encoded, other.Cid), ErrCidMismatch)
}

func TestNullCID(t *testing.T) {
	block, err := EncodeNull()
	require.NoError(t, err)
	assert.True(t, block.Cid.Equals(NullCID))
	assert.Equal(t, []byte{0xf6}, block.Encoded)
}

func TestTag42PrefixRejected(t *testing.T) {
	// A tag-42 payload not starting with 0x00 must be rejected on decode.
	bad := append([]byte{0x01}, make([]byte, BinaryLen)...)
	badContent, err := encMode.Marshal(bad)
	require.NoError(t, err)
	rawTagBytes, err := encMode.Marshal(cbor.RawTag{Number: cidLinkTag, Content: badContent})
	require.NoError(t, err)

	var c Cid
	assert.Error(t, c.UnmarshalCBOR(rawTagBytes))
}
