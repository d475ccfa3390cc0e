// Package storage implements the key/value contract and domain helpers
// of spec.md §4.3: per-leaf record sharding, the contiguity probe and
// gap enumeration, the deduplicated DAG-trail append log, and the
// payload-slice inverted index. Store is the thin contract; everything
// else in this package is built on top of it in terms of its reserved
// key prefixes (spec.md §6: leaf:{i}:{field}, dag:trail:index:{n},
// dag:trail:maxIndex, cid:{cid}).
//
// Three adapters implement Store: Memory (a map, for tests and
// ephemeral runs), JSONFile (a single JSON-encoded snapshot, grounded
// on the teacher's own flat-file massif storage), and LevelDB (backed
// by syndtr/goleveldb, for a real embedded on-disk store).
package storage
