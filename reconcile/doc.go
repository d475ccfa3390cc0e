// Package reconcile implements the reconciliation pipeline of spec.md
// §4.7: the backward historical sweep with content-addressed
// short-circuiting, forward live sync over either a push subscription
// or polling, gap-filling walk-back via event chaining, and the
// per-event commit path that keeps storage and the in-memory MMR in
// lockstep. It is the component that ties the chain adapter, the
// content-addressed block client, storage, and the MMR engine
// together.
package reconcile
