package chain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
)

// LeafAppendedEvent is the decoded form of the contract's append event,
// per spec.md §3's AppendedEvent entity.
type LeafAppendedEvent struct {
	LeafIndex           uint32
	PreviousAppendBlock uint32
	NewData             []byte
	LeftInputs          []cid.Cid
	BlockNumber          uint64
	TxHash               common.Hash
	Removed              bool
}

// DecodeLeafAppended decodes a LeafAppended log, per spec.md §4.4:
// indexed topic 1 is leaf_index (u32, right-aligned in 32 bytes); the
// non-indexed payload ABI-encodes
// (uint32 previousAppendBlockNumber, bytes newData, bytes32[] leftInputs).
func DecodeLeafAppended(topics []common.Hash, data []byte, blockNumber uint64, txHash common.Hash, removed bool) (*LeafAppendedEvent, error) {
	const op = "chain.DecodeLeafAppended"
	if len(topics) < 2 {
		return nil, accerr.Newf(accerr.Invariant, op, "expected 2 topics (signature + leafIndex), got %d", len(topics))
	}
	leafIndex := binary.BigEndian.Uint32(topics[1][28:32])

	head, err := decodeLeafAppendedPayload(data)
	if err != nil {
		return nil, accerr.New(accerr.Invariant, op, err)
	}

	leftInputs := make([]cid.Cid, len(head.leftInputs))
	for i, digest := range head.leftInputs {
		c, err := cid.Of(digest)
		if err != nil {
			return nil, accerr.New(accerr.Invariant, op, err)
		}
		leftInputs[i] = c
	}

	return &LeafAppendedEvent{
		LeafIndex:           leafIndex,
		PreviousAppendBlock: head.previousAppendBlock,
		NewData:             head.newData,
		LeftInputs:          leftInputs,
		BlockNumber:         blockNumber,
		TxHash:              txHash,
		Removed:             removed,
	}, nil
}

type leafAppendedPayload struct {
	previousAppendBlock uint32
	newData              []byte
	leftInputs           [][32]byte
}

// decodeLeafAppendedPayload decodes the ABI tuple
// (uint32, bytes, bytes32[]) by hand: read the two dynamic offsets
// from the 32-byte-word head, then the length-prefixed body each
// offset points at. This mirrors spec.md §4.4's instruction to "read
// the two dynamic offsets from the head, the length prefix at each
// offset, and decode left_inputs[] by mapping each 32-byte digest
// through the peak-digest-to-CID wrap" rather than reaching for a full
// ABI-reflection decoder for a single fixed, known tuple shape.
func decodeLeafAppendedPayload(data []byte) (leafAppendedPayload, error) {
	var out leafAppendedPayload
	if len(data) < 96 {
		return out, accerr.Newf(accerr.Invariant, "chain.decodeLeafAppendedPayload", "payload too short: %d bytes", len(data))
	}

	out.previousAppendBlock = binary.BigEndian.Uint32(word(data, 0)[28:32])
	bytesOffset := wordUint64(data, 1)
	arrayOffset := wordUint64(data, 2)

	newData, err := decodeDynamicBytes(data, bytesOffset)
	if err != nil {
		return out, err
	}
	out.newData = newData

	leftInputs, err := decodeBytes32Array(data, arrayOffset)
	if err != nil {
		return out, err
	}
	out.leftInputs = leftInputs

	return out, nil
}

// word returns the i-th 32-byte word of the ABI payload.
func word(data []byte, i int) []byte {
	off := i * 32
	return data[off : off+32]
}

func wordUint64(data []byte, i int) uint64 {
	return binary.BigEndian.Uint64(word(data, i)[24:32])
}

func decodeDynamicBytes(data []byte, offset uint64) ([]byte, error) {
	if offset+32 > uint64(len(data)) {
		return nil, accerr.Newf(accerr.Invariant, "chain.decodeDynamicBytes", "length prefix out of range at offset %d", offset)
	}
	length := binary.BigEndian.Uint64(data[offset+24 : offset+32])
	start := offset + 32
	end := start + length
	if end > uint64(len(data)) {
		return nil, accerr.Newf(accerr.Invariant, "chain.decodeDynamicBytes", "body out of range: %d-%d of %d", start, end, len(data))
	}
	return data[start:end], nil
}

func decodeBytes32Array(data []byte, offset uint64) ([][32]byte, error) {
	if offset+32 > uint64(len(data)) {
		return nil, accerr.Newf(accerr.Invariant, "chain.decodeBytes32Array", "length prefix out of range at offset %d", offset)
	}
	length := binary.BigEndian.Uint64(data[offset+24 : offset+32])
	start := offset + 32
	out := make([][32]byte, length)
	for i := uint64(0); i < length; i++ {
		elOff := start + i*32
		if elOff+32 > uint64(len(data)) {
			return nil, accerr.Newf(accerr.Invariant, "chain.decodeBytes32Array", "element %d out of range", i)
		}
		copy(out[i][:], data[elOff:elOff+32])
	}
	return out, nil
}
