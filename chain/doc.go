// Package chain talks to the on-chain accumulator contract: it wraps a
// bare JSON-RPC transport with throttling and retry, decodes the packed
// state word and LeafAppended event payload, and exposes the two view
// calls (root_cid, state) the rest of the system needs.
//
// Everything in this package works in terms of the wire formats
// spec.md §4.4 defines — bit-packed state words, ABI-encoded event
// payloads, bytes returns — not a generated contract binding, since the
// accumulator's ABI is fixed and small enough to decode by hand the way
// the teacher pack decodes its own on-chain structures directly against
// raw JSON-RPC responses (see writerslogic-witnessd's anchors package).
package chain
