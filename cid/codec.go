package cid

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// tag42Prefix is the leading byte every tag-42 CID link's byte-string
// payload must carry, per spec.md §4.1 ("decoding must verify that tag 42
// payloads start with 0x00").
const tag42Prefix = 0x00

const cidLinkTag = 42

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Canonical-enough for our purposes: we never emit a map with more
	// than the two fixed keys "L"/"R", written in struct-declaration
	// order, so no key-sort pass is needed to be deterministic. This
	// mirrors the teacher's own massifs.NewCBORCodec, which wraps
	// fxamacker/cbor with a fixed Enc/DecOptions pair rather than
	// hand-rolling a CBOR writer.
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortNone,
		TimeTag:       cbor.EncTagNone,
		ShortestFloat: cbor.ShortestFloatNone,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// MarshalCBOR implements cbor.Marshaler, emitting the tag-42 CID link
// convention: a byte string of 0x00 followed by the 36-byte binary CID.
func (c Cid) MarshalCBOR() ([]byte, error) {
	payload := make([]byte, 1+BinaryLen)
	payload[0] = tag42Prefix
	copy(payload[1:], c.Bytes())
	content, err := encMode.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(cbor.RawTag{Number: cidLinkTag, Content: content})
}

// UnmarshalCBOR implements cbor.Unmarshaler for the tag-42 CID link form.
func (c *Cid) UnmarshalCBOR(data []byte) error {
	var tag cbor.RawTag
	if err := decMode.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("cid: decode tag: %w", err)
	}
	if tag.Number != cidLinkTag {
		return fmt.Errorf("cid: expected tag 42, got %d", tag.Number)
	}
	var payload []byte
	if err := decMode.Unmarshal(tag.Content, &payload); err != nil {
		return fmt.Errorf("cid: decode tag payload: %w", err)
	}
	if len(payload) != 1+BinaryLen || payload[0] != tag42Prefix {
		return fmt.Errorf("cid: malformed tag 42 payload")
	}
	parsed, err := Cast(payload[1:])
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// LinkNode is the dag-cbor map {"L": link, "R": link} that joins two
// sub-trees in the MMR, per spec.md §3.
type LinkNode struct {
	L Cid `cbor:"L"`
	R Cid `cbor:"R"`
}

// Block is the result of encoding a value: its content-address and the
// exact bytes that hash to it.
type Block struct {
	Cid     Cid
	Encoded []byte
}

func encodeAndHash(v any) (Block, error) {
	encoded, err := encMode.Marshal(v)
	if err != nil {
		return Block{}, fmt.Errorf("cid: encode: %w", err)
	}
	c, err := FromData(encoded)
	if err != nil {
		return Block{}, err
	}
	return Block{Cid: c, Encoded: encoded}, nil
}

// EncodeLeaf produces the dag-cbor "Bytes" block for a raw leaf payload.
func EncodeLeaf(payload []byte) (Block, error) {
	return encodeAndHash(payload)
}

// EncodeLink produces the dag-cbor {L,R} block joining two children.
func EncodeLink(l, r Cid) (Block, error) {
	return encodeAndHash(LinkNode{L: l, R: r})
}

// EncodeNull produces the dag-cbor encoding of JSON null. Its CID is the
// well-known NullCID constant, reproduced here so tests can check the
// roundtrip (spec.md §8, "Null-CID equality").
func EncodeNull() (Block, error) {
	return encodeAndHash(nil)
}

// VerifyCID recomputes the CID of encoded and reports whether it matches
// expected.
func VerifyCID(encoded []byte, expected Cid) bool {
	c, err := FromData(encoded)
	if err != nil {
		return false
	}
	return c.Equals(expected)
}

// ErrCidMismatch is returned by VerifyCIDChecked when the recomputed CID
// does not match the expected one.
var ErrCidMismatch = errors.New("cid: mismatch")

// VerifyCIDChecked is the checked variant of VerifyCID described in
// spec.md §4.1: it fails with ErrCidMismatch rather than returning a bool.
func VerifyCIDChecked(encoded []byte, expected Cid) error {
	if !VerifyCID(encoded, expected) {
		return ErrCidMismatch
	}
	return nil
}

// NodeKind discriminates the decoded shape of a dag-cbor block, per
// Design Note 5: leaf bytes, a {L,R} link, or a bare CID. The MMR engine
// here never produces the bare-CID shape itself — it can only arise if a
// block service hands back a "self-describing" redirect block — but
// decode must still recognize it rather than erroring.
type NodeKind int

const (
	KindLeaf NodeKind = iota
	KindLink
	KindRawLink
)

// Node is the decoded form of one dag-cbor block.
type Node struct {
	Kind NodeKind
	Leaf []byte
	Link LinkNode
	Raw  Cid
}

// ErrUnknownShape is returned by DecodeNode when the bytes don't match
// any of the three recognized dag-cbor shapes.
var ErrUnknownShape = errors.New("cid: unrecognized dag-cbor node shape")

// DecodeNode dispatches on the dag-cbor major type/tag of encoded and
// returns the corresponding Node. Unknown shapes are rejected rather than
// silently coerced, per Design Note 5.
func DecodeNode(encoded []byte) (Node, error) {
	var link LinkNode
	if err := decMode.Unmarshal(encoded, &link); err == nil && link.L.Defined() && link.R.Defined() {
		return Node{Kind: KindLink, Link: link}, nil
	}

	// The bare-CID shape is tried before the leaf shape: decoding into
	// []byte skips an unregistered tag and would accept a tag-42 link's
	// byte string as leaf bytes.
	var raw Cid
	if err := decMode.Unmarshal(encoded, &raw); err == nil && raw.Defined() {
		return Node{Kind: KindRawLink, Raw: raw}, nil
	}

	var leaf []byte
	if err := decMode.Unmarshal(encoded, &leaf); err == nil {
		return Node{Kind: KindLeaf, Leaf: leaf}, nil
	}

	return Node{}, ErrUnknownShape
}
