package dagresolver

import (
	"context"

	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
)

// BlockSource fetches and verifies a single block by CID. Implementations
// (e.g. blockclient.Client.Get) are responsible for CID verification;
// ResolveTree trusts the bytes it gets back.
type BlockSource interface {
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
}

// ResolveTree walks root depth-first and returns the concatenated leaf
// bytes in left-to-right order, per spec.md §4.6: a Bytes leaf returns
// itself; a bare Cid recurses on the link; a {L,R} link recurses left
// then right. Any fetch failure or unrecognized shape fails the whole
// call. ctx cancellation is checked before every fetch and yields a
// Cancelled error distinct from NotFound.
func ResolveTree(ctx context.Context, root cid.Cid, source BlockSource) ([][]byte, error) {
	const op = "dagresolver.ResolveTree"

	if err := ctx.Err(); err != nil {
		return nil, accerr.New(accerr.Cancelled, op, err)
	}

	encoded, err := source.Get(ctx, root)
	if err != nil {
		if ctx.Err() != nil || accerr.KindOf(err) == accerr.Cancelled {
			return nil, accerr.New(accerr.Cancelled, op, err)
		}
		if accerr.KindOf(err) == accerr.NotFound || accerr.KindOf(err) == accerr.CidMismatch {
			return nil, err
		}
		return nil, accerr.New(accerr.NotFound, op, err)
	}

	node, err := cid.DecodeNode(encoded)
	if err != nil {
		return nil, accerr.New(accerr.Invariant, op, err)
	}

	switch node.Kind {
	case cid.KindLeaf:
		return [][]byte{node.Leaf}, nil
	case cid.KindRawLink:
		return ResolveTree(ctx, node.Raw, source)
	case cid.KindLink:
		left, err := ResolveTree(ctx, node.Link.L, source)
		if err != nil {
			return nil, err
		}
		right, err := ResolveTree(ctx, node.Link.R, source)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	default:
		return nil, accerr.Newf(accerr.Invariant, op, "unrecognized node shape for %s", root)
	}
}
