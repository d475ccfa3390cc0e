package mmr

import "github.com/Austin-Williams/cid-accumulator-client/cid"

// Unsubscribe removes a previously registered trail subscriber.
type Unsubscribe func()

// Subscribe registers fn to be invoked, synchronously, immediately
// after every successful Append, with the trail that append produced.
// Subscribers are invoked in slice order, which is registration order
// until an unsubscribe swap-removes an entry; a panicking subscriber
// is recovered so it can never abort the Append that triggered it
// (spec.md §4.2, "Subscriber exceptions must not abort append").
//
// Per Design Note 1, unsubscribe is a swap-remove: subscriber order is
// not contractual, so there's no need to preserve it on removal.
func (m *Mmr) Subscribe(fn func(trail []cid.Block)) Unsubscribe {
	id := 0
	for _, s := range m.subs {
		if s.id >= id {
			id = s.id + 1
		}
	}
	m.subs = append(m.subs, subscription{id: id, fn: fn})

	return func() {
		for i, s := range m.subs {
			if s.id == id {
				last := len(m.subs) - 1
				m.subs[i] = m.subs[last]
				m.subs = m.subs[:last]
				return
			}
		}
	}
}

func (m *Mmr) notify(trail []cid.Block) {
	for _, s := range m.subs {
		func() {
			defer func() { recover() }()
			s.fn(trail)
		}()
	}
}
