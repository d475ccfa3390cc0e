package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
)

type logFilter struct {
	Address   string `json:"address"`
	FromBlock string `json:"fromBlock"`
	ToBlock   string `json:"toBlock"`
	Topics    []any  `json:"topics"`
}

type rawLog struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        string         `json:"data"`
	BlockNumber string         `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
	Removed     bool           `json:"removed"`
}

// FetchLogs fetches LeafAppended events over [fromBlock, toBlock] via
// eth_getLogs and decodes each into a LeafAppendedEvent, per spec.md
// §4.4 and §6.
func (c *Client) FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]*LeafAppendedEvent, error) {
	const op = "chain.Client.FetchLogs"
	filter := logFilter{
		Address:   c.address.Hex(),
		FromBlock: hexUint64(fromBlock),
		ToBlock:   hexUint64(toBlock),
		Topics:    []any{c.EventTopic.Hex()},
	}
	raw, err := c.transport.Call(ctx, "eth_getLogs", filter)
	if err != nil {
		return nil, accerr.New(accerr.Transport, op, err)
	}

	var logs []rawLog
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, accerr.New(accerr.Invariant, op, fmt.Errorf("decode eth_getLogs response: %w", err))
	}

	events := make([]*LeafAppendedEvent, 0, len(logs))
	for _, l := range logs {
		data, err := hexToBytes(l.Data)
		if err != nil {
			return nil, accerr.New(accerr.Invariant, op, err)
		}
		blockNumber, err := hexToUint64(l.BlockNumber)
		if err != nil {
			return nil, accerr.New(accerr.Invariant, op, err)
		}
		ev, err := DecodeLeafAppended(l.Topics, data, blockNumber, l.TxHash, l.Removed)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// SubscribeNewHeads opens an eth_subscribe("newHeads") push
// subscription, for the live-sync path's subscription-or-poll choice
// (spec.md §4.6). Transports that don't support subscriptions (e.g. a
// plain HTTP transport) return an error here, which callers treat as
// "fall back to polling."
func (c *Client) SubscribeNewHeads(ctx context.Context) (Subscription, error) {
	sub, err := c.transport.Subscribe(ctx, "eth_subscribe", "newHeads")
	if err != nil {
		return nil, accerr.New(accerr.Transport, "chain.Client.SubscribeNewHeads", err)
	}
	return sub, nil
}

func hexUint64(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}

func hexToUint64(s string) (uint64, error) {
	b, err := hexToBytes(padHex(s))
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, by := range b {
		v = v<<8 | uint64(by)
	}
	return v, nil
}

// padHex left-pads an odd-length hex string (after stripping 0x) with a
// zero nibble so hex.DecodeString accepts it.
func padHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return "0x" + s
}
