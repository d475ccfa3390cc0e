package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
)

// Trail append-log keys, per spec.md §4.3/§6:
// dag:trail:index:{n}, dag:trail:maxIndex, cid:{cid}.
const (
	trailIndexPrefix = "dag:trail:index:"
	trailMaxIndexKey = "dag:trail:maxIndex"
	cidSentinelPrefix = "cid:"
)

func trailIndexKey(n uint64) string { return fmt.Sprintf("%s%d", trailIndexPrefix, n) }
func cidSentinelKey(c cid.Cid) string { return cidSentinelPrefix + c.String() }

// trailPairJSON is the on-disk form of a TrailPair: {cid, hex(encoded)}.
type trailPairJSON struct {
	Cid     string `json:"cid"`
	Encoded string `json:"encoded"`
}

// MaxTrailIndex reads dag:trail:maxIndex, or -1 if the log is empty.
func MaxTrailIndex(ctx context.Context, s Store) (int64, error) {
	const op = "storage.MaxTrailIndex"
	v, ok, err := s.Get(ctx, trailMaxIndexKey)
	if err != nil {
		return 0, accerr.New(accerr.Transport, op, err)
	}
	if !ok {
		return -1, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, accerr.New(accerr.Invariant, op, err)
	}
	return n, nil
}

// AppendTrailPair verifies block's CID, then appends it to the trail
// log, skipping silently if its CID sentinel already exists (spec.md
// §4.3: "Appending a pair verifies the CID, skips on duplicate
// sentinel, otherwise increments maxIndex and writes both the pair and
// the sentinel atomically from the caller's perspective."). Each Store
// call is serialized by the adapter on its own, but nothing here locks
// across the sentinel read and the three writes, so two concurrent calls
// on one Store can read the same maxIndex. The pipeline calls it only
// with its own mutex held.
func AppendTrailPair(ctx context.Context, s Store, block cid.Block) error {
	const op = "storage.AppendTrailPair"

	if err := cid.VerifyCIDChecked(block.Encoded, block.Cid); err != nil {
		return accerr.New(accerr.CidMismatch, op, err)
	}

	_, exists, err := s.Get(ctx, cidSentinelKey(block.Cid))
	if err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	if exists {
		return nil
	}

	maxIndex, err := MaxTrailIndex(ctx, s)
	if err != nil {
		return err
	}
	nextIndex := uint64(maxIndex + 1)

	pair := trailPairJSON{Cid: block.Cid.String(), Encoded: hex.EncodeToString(block.Encoded)}
	b, err := json.Marshal(pair)
	if err != nil {
		return accerr.New(accerr.Invariant, op, err)
	}

	if err := s.Put(ctx, trailIndexKey(nextIndex), string(b)); err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	if err := s.Put(ctx, cidSentinelKey(block.Cid), "1"); err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	if err := s.Put(ctx, trailMaxIndexKey, strconv.FormatUint(nextIndex, 10)); err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	return nil
}

// GetTrailPair reads back the pair at trail index n.
func GetTrailPair(ctx context.Context, s Store, n uint64) (cid.Block, bool, error) {
	const op = "storage.GetTrailPair"
	v, ok, err := s.Get(ctx, trailIndexKey(n))
	if err != nil {
		return cid.Block{}, false, accerr.New(accerr.Transport, op, err)
	}
	if !ok {
		return cid.Block{}, false, nil
	}
	var pair trailPairJSON
	if err := json.Unmarshal([]byte(v), &pair); err != nil {
		return cid.Block{}, false, accerr.New(accerr.Invariant, op, err)
	}
	c, err := cid.Parse(pair.Cid)
	if err != nil {
		return cid.Block{}, false, accerr.New(accerr.Invariant, op, err)
	}
	encoded, err := hex.DecodeString(pair.Encoded)
	if err != nil {
		return cid.Block{}, false, accerr.New(accerr.Invariant, op, err)
	}
	return cid.Block{Cid: c, Encoded: encoded}, true, nil
}

// HasCID reports whether the trail log already contains a block for c.
func HasCID(ctx context.Context, s Store, c cid.Cid) (bool, error) {
	_, ok, err := s.Get(ctx, cidSentinelKey(c))
	if err != nil {
		return false, accerr.New(accerr.Transport, "storage.HasCID", err)
	}
	return ok, nil
}
