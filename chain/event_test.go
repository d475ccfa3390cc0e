package chain

import (
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeLeafAppendedPayload builds the ABI tuple
// (uint32 previousAppendBlock, bytes newData, bytes32[] leftInputs)
// the way the contract would, for use as a test fixture.
func encodeLeafAppendedPayload(prevBlock uint32, newData []byte, leftInputs [][32]byte) []byte {
	head := make([]byte, 96)
	binary.BigEndian.PutUint32(head[28:32], prevBlock)

	bytesOffset := uint64(96)
	binary.BigEndian.PutUint64(head[32+24:32+32], bytesOffset)

	bytesWords := (len(newData) + 31) / 32
	bytesBody := make([]byte, 32+bytesWords*32)
	binary.BigEndian.PutUint64(bytesBody[24:32], uint64(len(newData)))
	copy(bytesBody[32:], newData)

	arrayOffset := bytesOffset + uint64(len(bytesBody))
	binary.BigEndian.PutUint64(head[64+24:64+32], arrayOffset)

	arrayBody := make([]byte, 32+len(leftInputs)*32)
	binary.BigEndian.PutUint64(arrayBody[24:32], uint64(len(leftInputs)))
	for i, d := range leftInputs {
		copy(arrayBody[32+i*32:32+i*32+32], d[:])
	}

	out := append([]byte{}, head...)
	out = append(out, bytesBody...)
	out = append(out, arrayBody...)
	return out
}

func TestDecodeLeafAppended(t *testing.T) {
	var leaf0 common.Hash
	binary.BigEndian.PutUint32(leaf0[28:32], 7)

	var in1, in2 [32]byte
	in1[0] = 0xaa
	in2[0] = 0xbb

	payload := encodeLeafAppendedPayload(41, []byte("hello world"), [][32]byte{in1, in2})

	topics := []common.Hash{common.HexToHash("0x1234"), leaf0}
	ev, err := DecodeLeafAppended(topics, payload, 1000, common.HexToHash("0xdead"), false)
	require.NoError(t, err)

	assert.Equal(t, uint32(7), ev.LeafIndex)
	assert.Equal(t, uint32(41), ev.PreviousAppendBlock)
	assert.Equal(t, []byte("hello world"), ev.NewData)
	require.Len(t, ev.LeftInputs, 2)
	assert.Equal(t, in1, ev.LeftInputs[0].Digest())
	assert.Equal(t, in2, ev.LeftInputs[1].Digest())
	assert.Equal(t, uint64(1000), ev.BlockNumber)
	assert.False(t, ev.Removed)
}

func TestDecodeLeafAppendedRejectsMissingTopic(t *testing.T) {
	_, err := DecodeLeafAppended([]common.Hash{common.HexToHash("0x1")}, nil, 0, common.Hash{}, false)
	require.Error(t, err)
}

func TestDecodeLeafAppendedEmptyLeftInputs(t *testing.T) {
	var leaf0 common.Hash
	binary.BigEndian.PutUint32(leaf0[28:32], 0)
	payload := encodeLeafAppendedPayload(0, []byte{}, nil)

	topics := []common.Hash{common.HexToHash("0x1234"), leaf0}
	ev, err := DecodeLeafAppended(topics, payload, 1, common.Hash{}, false)
	require.NoError(t, err)
	assert.Empty(t, ev.LeftInputs)
	assert.Empty(t, ev.NewData)
}
