package chain

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
)

// defaultLeafAppendedSignature is keccak256("LeafAppended(uint32,uint32,bytes,bytes32[])"),
// used as the log topic 0 filter unless the caller overrides it, per
// spec.md §6's "configurable topic/override".
var defaultLeafAppendedSignature = crypto.Keccak256Hash([]byte("LeafAppended(uint32,uint32,bytes,bytes32[])"))

// Client is the chain adapter: view calls, log range fetches, and
// single-leaf lookups against the accumulator contract, over a
// Transport (normally a *ThrottledTransport).
type Client struct {
	transport Transport
	address   common.Address

	// RootCIDCallData and StateCallData override the default 4-byte
	// selectors, for contracts that wrap the two view calls behind a
	// dispatcher, per spec.md §4.4/§6.
	RootCIDCallData []byte
	StateCallData   []byte

	// EventTopic overrides the default LeafAppended signature hash.
	EventTopic common.Hash
}

// rootCIDSelector is the 4-byte selector for getRootCID().
var rootCIDSelector = crypto.Keccak256([]byte("getRootCID()"))[:4]

// stateSelector is the 4-byte selector for getState().
var stateSelector = crypto.Keccak256([]byte("getState()"))[:4]

// New returns a Client that issues calls to address over transport.
func New(transport Transport, address common.Address) *Client {
	return &Client{
		transport:       transport,
		address:         address,
		RootCIDCallData: rootCIDSelector,
		StateCallData:   stateSelector,
		EventTopic:      defaultLeafAppendedSignature,
	}
}

type ethCallObject struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// RootCID issues the getRootCID() view call and decodes its bare
// `bytes` return, per spec.md §4.4: "root_cid() returns bytes at
// offset 64 of length read from bytes 60-63 of the ABI response".
func (c *Client) RootCID(ctx context.Context) (cid.Cid, error) {
	const op = "chain.Client.RootCID"
	raw, err := c.ethCall(ctx, c.RootCIDCallData)
	if err != nil {
		return cid.Cid{}, accerr.New(accerr.Transport, op, err)
	}
	if len(raw) < 64 {
		return cid.Cid{}, accerr.Newf(accerr.Invariant, op, "response too short: %d bytes", len(raw))
	}
	length := binary.BigEndian.Uint32(raw[60:64])
	start := uint64(64)
	end := start + uint64(length)
	if end > uint64(len(raw)) {
		return cid.Cid{}, accerr.Newf(accerr.Invariant, op, "bytes body out of range: %d-%d of %d", start, end, len(raw))
	}
	out, err := cid.Cast(raw[start:end])
	if err != nil {
		return cid.Cid{}, accerr.New(accerr.Invariant, op, err)
	}
	return out, nil
}

// State issues the getState() view call and decodes the packed state
// word plus raw peak digest array, per spec.md §4.4: "A fresh bulk view
// returns (state_word, [u8;32][32])".
func (c *Client) State(ctx context.Context) (StateWord, []cid.Cid, error) {
	const op = "chain.Client.State"
	raw, err := c.ethCall(ctx, c.StateCallData)
	if err != nil {
		return StateWord{}, nil, accerr.New(accerr.Transport, op, err)
	}
	if len(raw) < 32+32*32 {
		return StateWord{}, nil, accerr.Newf(accerr.Invariant, op, "response too short: %d bytes", len(raw))
	}
	var word [32]byte
	copy(word[:], raw[:32])
	sw := DecodeStateWord(word)

	var digests [32][32]byte
	for i := 0; i < 32; i++ {
		off := 32 + i*32
		copy(digests[i][:], raw[off:off+32])
	}
	peaks, err := PeaksFromDigests(digests, sw.PeakCount)
	if err != nil {
		return StateWord{}, nil, accerr.New(accerr.Invariant, op, err)
	}
	return sw, peaks, nil
}

// ethCall issues an eth_call against c.address with the given calldata
// and returns the decoded result bytes.
func (c *Client) ethCall(ctx context.Context, calldata []byte) ([]byte, error) {
	obj := ethCallObject{
		To:   c.address.Hex(),
		Data: "0x" + hex.EncodeToString(calldata),
	}
	raw, err := c.transport.Call(ctx, "eth_call", obj, "latest")
	if err != nil {
		return nil, err
	}
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err != nil {
		return nil, fmt.Errorf("chain: decode eth_call response: %w", err)
	}
	return hexToBytes(hexStr)
}

func hexToBytes(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
