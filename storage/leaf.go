package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Austin-Williams/cid-accumulator-client/chain"
	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/mmr"
)

// leafKeyPrefix and field suffixes implement spec.md §4.3's per-field
// key sharding: leaf:{i}:newData, :event, :blockNumber, :rootCid,
// :peaksWithHeights.
const leafKeyPrefix = "leaf:"

func leafKey(i uint64, field string) string {
	return fmt.Sprintf("%s%d:%s", leafKeyPrefix, i, field)
}

// LeafRecord is the fully- or partially-populated per-leaf record of
// spec.md §3. Event is nil until the record has been enriched with the
// on-chain event that produced it (backward sweep always has it; some
// call sites may write NewData alone first).
type LeafRecord struct {
	NewData                  []byte
	Event                    *chain.LeafAppendedEvent
	BlockNumber               uint64
	RootCIDBeforeAppend        cid.Cid
	PeaksWithHeightsBeforeAppend []mmr.Peak
}

type peakWithHeightJSON struct {
	Cid    string `json:"cid"`
	Height uint8  `json:"height"`
}

type eventJSON struct {
	LeafIndex           uint32   `json:"leafIndex"`
	PreviousAppendBlock uint32   `json:"previousAppendBlock"`
	NewData             string   `json:"newData"`
	LeftInputs          []string `json:"leftInputs"`
	BlockNumber         uint64   `json:"blockNumber"`
	TxHash              string   `json:"txHash"`
	Removed             bool     `json:"removed"`
}

// PutLeaf writes rec's fields under leaf:{i}:*. Presence of :newData is
// what makes the leaf count as "in the DB" for the contiguity probe, so
// it's the last field written; a reader's contiguity probe therefore
// never observes a partially-written leaf as present.
func PutLeaf(ctx context.Context, s Store, i uint64, rec LeafRecord) error {
	const op = "storage.PutLeaf"

	if err := s.Put(ctx, leafKey(i, "blockNumber"), strconv.FormatUint(rec.BlockNumber, 10)); err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	if rec.RootCIDBeforeAppend.Defined() {
		if err := s.Put(ctx, leafKey(i, "rootCid"), rec.RootCIDBeforeAppend.String()); err != nil {
			return accerr.New(accerr.Transport, op, err)
		}
	}
	if len(rec.PeaksWithHeightsBeforeAppend) > 0 {
		peaksJSON := make([]peakWithHeightJSON, len(rec.PeaksWithHeightsBeforeAppend))
		for idx, p := range rec.PeaksWithHeightsBeforeAppend {
			peaksJSON[idx] = peakWithHeightJSON{Cid: p.Cid.String(), Height: p.Height}
		}
		b, err := json.Marshal(peaksJSON)
		if err != nil {
			return accerr.New(accerr.Invariant, op, err)
		}
		if err := s.Put(ctx, leafKey(i, "peaksWithHeights"), string(b)); err != nil {
			return accerr.New(accerr.Transport, op, err)
		}
	}
	if rec.Event != nil {
		ej := eventJSON{
			LeafIndex:           rec.Event.LeafIndex,
			PreviousAppendBlock: rec.Event.PreviousAppendBlock,
			NewData:             hex.EncodeToString(rec.Event.NewData),
			BlockNumber:         rec.Event.BlockNumber,
			TxHash:              rec.Event.TxHash.Hex(),
			Removed:             rec.Event.Removed,
		}
		ej.LeftInputs = make([]string, len(rec.Event.LeftInputs))
		for idx, c := range rec.Event.LeftInputs {
			ej.LeftInputs[idx] = c.String()
		}
		b, err := json.Marshal(ej)
		if err != nil {
			return accerr.New(accerr.Invariant, op, err)
		}
		if err := s.Put(ctx, leafKey(i, "event"), string(b)); err != nil {
			return accerr.New(accerr.Transport, op, err)
		}
	}

	// newData written last: its presence is the "leaf is in the DB" marker.
	if err := s.Put(ctx, leafKey(i, "newData"), hex.EncodeToString(rec.NewData)); err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	return nil
}

// GetLeaf reads back the leaf record at i. Returns (rec, false, nil) if
// :newData is absent.
func GetLeaf(ctx context.Context, s Store, i uint64) (LeafRecord, bool, error) {
	const op = "storage.GetLeaf"

	newDataHex, ok, err := s.Get(ctx, leafKey(i, "newData"))
	if err != nil {
		return LeafRecord{}, false, accerr.New(accerr.Transport, op, err)
	}
	if !ok {
		return LeafRecord{}, false, nil
	}
	newData, err := hex.DecodeString(newDataHex)
	if err != nil {
		return LeafRecord{}, false, accerr.New(accerr.Invariant, op, err)
	}

	rec := LeafRecord{NewData: newData}

	if v, ok, err := s.Get(ctx, leafKey(i, "blockNumber")); err != nil {
		return LeafRecord{}, false, accerr.New(accerr.Transport, op, err)
	} else if ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return LeafRecord{}, false, accerr.New(accerr.Invariant, op, err)
		}
		rec.BlockNumber = n
	}

	if v, ok, err := s.Get(ctx, leafKey(i, "rootCid")); err != nil {
		return LeafRecord{}, false, accerr.New(accerr.Transport, op, err)
	} else if ok {
		c, err := cid.Parse(v)
		if err != nil {
			return LeafRecord{}, false, accerr.New(accerr.Invariant, op, err)
		}
		rec.RootCIDBeforeAppend = c
	}

	if v, ok, err := s.Get(ctx, leafKey(i, "peaksWithHeights")); err != nil {
		return LeafRecord{}, false, accerr.New(accerr.Transport, op, err)
	} else if ok {
		var peaksJSON []peakWithHeightJSON
		if err := json.Unmarshal([]byte(v), &peaksJSON); err != nil {
			return LeafRecord{}, false, accerr.New(accerr.Invariant, op, err)
		}
		rec.PeaksWithHeightsBeforeAppend = make([]mmr.Peak, len(peaksJSON))
		for idx, p := range peaksJSON {
			c, err := cid.Parse(p.Cid)
			if err != nil {
				return LeafRecord{}, false, accerr.New(accerr.Invariant, op, err)
			}
			rec.PeaksWithHeightsBeforeAppend[idx] = mmr.Peak{Cid: c, Height: p.Height}
		}
	}

	if v, ok, err := s.Get(ctx, leafKey(i, "event")); err != nil {
		return LeafRecord{}, false, accerr.New(accerr.Transport, op, err)
	} else if ok {
		var ej eventJSON
		if err := json.Unmarshal([]byte(v), &ej); err != nil {
			return LeafRecord{}, false, accerr.New(accerr.Invariant, op, err)
		}
		ev, err := eventFromJSON(ej)
		if err != nil {
			return LeafRecord{}, false, accerr.New(accerr.Invariant, op, err)
		}
		rec.Event = ev
	}

	return rec, true, nil
}

func eventFromJSON(ej eventJSON) (*chain.LeafAppendedEvent, error) {
	newData, err := hex.DecodeString(ej.NewData)
	if err != nil {
		return nil, err
	}
	leftInputs := make([]cid.Cid, len(ej.LeftInputs))
	for i, s := range ej.LeftInputs {
		c, err := cid.Parse(s)
		if err != nil {
			return nil, err
		}
		leftInputs[i] = c
	}
	return &chain.LeafAppendedEvent{
		LeafIndex:           ej.LeafIndex,
		PreviousAppendBlock: ej.PreviousAppendBlock,
		NewData:             newData,
		LeftInputs:          leftInputs,
		BlockNumber:         ej.BlockNumber,
		TxHash:              common.HexToHash(ej.TxHash),
		Removed:             ej.Removed,
	}, nil
}

// HighestContiguousLeafIndexWithData implements spec.md §4.3's
// contiguity probe: the largest N such that leaf:0:newData .. leaf:N
// all exist, or −1 if leaf:0:newData is absent.
func HighestContiguousLeafIndexWithData(ctx context.Context, s Store) (int64, error) {
	const op = "storage.HighestContiguousLeafIndexWithData"
	var n int64 = -1
	for {
		_, ok, err := s.Get(ctx, leafKey(uint64(n+1), "newData"))
		if err != nil {
			return 0, accerr.New(accerr.Transport, op, err)
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// Gaps returns the sorted list of leaf indices in [0, n] missing
// :newData, per spec.md §4.3's gap enumeration.
func Gaps(ctx context.Context, s Store, n uint64) ([]uint64, error) {
	const op = "storage.Gaps"
	var gaps []uint64
	for i := uint64(0); i <= n; i++ {
		_, ok, err := s.Get(ctx, leafKey(i, "newData"))
		if err != nil {
			return nil, accerr.New(accerr.Transport, op, err)
		}
		if !ok {
			gaps = append(gaps, i)
		}
	}
	return gaps, nil
}

// CreateIndexByPayloadSlice builds the inverted index
// hex(payload[offset:offset+length]) -> [leaf index...], over every
// leaf:*:newData key currently in storage, per spec.md §4.3.
func CreateIndexByPayloadSlice(ctx context.Context, s Store, offset, length int) (map[string][]string, error) {
	const op = "storage.CreateIndexByPayloadSlice"
	pairs, err := s.Iterate(ctx, leafKeyPrefix)
	if err != nil {
		return nil, accerr.New(accerr.Transport, op, err)
	}

	index := map[string][]string{}
	for kv := range pairs {
		idx, field, ok := parseLeafKey(kv.Key)
		if !ok || field != "newData" {
			continue
		}
		payload, err := hex.DecodeString(kv.Value)
		if err != nil {
			return nil, accerr.New(accerr.Invariant, op, err)
		}
		if offset+length > len(payload) || offset < 0 || length < 0 {
			continue
		}
		slice := hex.EncodeToString(payload[offset : offset+length])
		index[slice] = append(index[slice], strconv.FormatUint(idx, 10))
	}
	return index, nil
}

// parseLeafKey splits a "leaf:{i}:{field}" key into its components.
func parseLeafKey(key string) (uint64, string, bool) {
	if !strings.HasPrefix(key, leafKeyPrefix) {
		return 0, "", false
	}
	rest := strings.TrimPrefix(key, leafKeyPrefix)
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	idx, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return idx, parts[1], true
}
