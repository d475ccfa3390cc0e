package cid

import (
	"crypto/sha256"
	"fmt"

	ipfscid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// DagCBOR and Sha256 are the only codec/hash pair this system ever
// produces or accepts, per spec.md §3.
const (
	DagCBOR = 0x71
	Sha256  = 0x12
)

// BinaryLen is the length of a CIDv1 in its 36-byte binary form:
// version, codec, hash-function, digest-length, 32-byte digest.
const BinaryLen = 4 + 32

// Cid is a CIDv1(dag-cbor, sha2-256) value. It is a thin, comparable
// wrapper over github.com/ipfs/go-cid so that this package can attach
// the dag-cbor tag-42 marshaling convention spec.md §4.1 requires.
type Cid struct {
	c ipfscid.Cid
}

// NullCID is the CID of the dag-cbor encoding of JSON null (the single
// byte 0xf6). It is the root of an empty MMR.
var NullCID = mustParse("bafyreifqwkmiw256ojf2zws6tzjeonw6bpd5vza4i22ccpcq4hjv2ts7cm")

func mustParse(s string) Cid {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Of returns the Cid over the given already-sha256-hashed digest. It does
// not hash data itself — see FromData for that. It exists so callers that
// already hold a raw 32-byte digest (e.g. a peak digest read straight off
// the chain, per spec.md §4.4) can wrap it without a spurious rehash.
func Of(digest [32]byte) (Cid, error) {
	mh, err := multihash.Encode(digest[:], Sha256)
	if err != nil {
		return Cid{}, fmt.Errorf("cid: encode multihash: %w", err)
	}
	return Cid{c: ipfscid.NewCidV1(DagCBOR, mh)}, nil
}

// FromData hashes data with sha2-256 and wraps the digest as a CIDv1.
func FromData(data []byte) (Cid, error) {
	return Of(sha256.Sum256(data))
}

// Parse decodes the canonical multibase-b (lowercase base32) text form.
func Parse(s string) (Cid, error) {
	c, err := ipfscid.Decode(s)
	if err != nil {
		return Cid{}, fmt.Errorf("cid: parse %q: %w", s, err)
	}
	return Cid{c: c}, nil
}

// Cast reconstructs a Cid from its 36-byte binary form.
func Cast(b []byte) (Cid, error) {
	c, err := ipfscid.Cast(b)
	if err != nil {
		return Cid{}, fmt.Errorf("cid: cast: %w", err)
	}
	return Cid{c: c}, nil
}

// Digest returns the raw 32-byte sha2-256 digest.
func (c Cid) Digest() [32]byte {
	var d [32]byte
	copy(d[:], c.c.Hash()[len(c.c.Hash())-32:])
	return d
}

// Bytes returns the 36-byte binary form: 01 71 12 20 <digest>.
func (c Cid) Bytes() []byte { return c.c.Bytes() }

// String returns the canonical base32 "b…" text form.
func (c Cid) String() string { return c.c.String() }

// Defined reports whether c holds a real value, as opposed to the zero Cid.
func (c Cid) Defined() bool { return c.c.Defined() }

// Equals compares two Cids by digest, per spec.md §3 ("equality is
// digest equality").
func (c Cid) Equals(other Cid) bool { return c.c.Equals(other.c) }

func (c Cid) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Cid) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
