// Package blockclient implements the content-addressed block client of
// spec.md §4.5: get/put/provide against an external block service, with
// client-side CID verification on both directions and an optional
// remote-pin side channel gated by a circuit breaker. Capability gating
// (which of put/pin/provide are available) is derived once at
// construction from which endpoints the caller configured.
package blockclient
