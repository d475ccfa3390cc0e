package chain

import (
	"context"
	"encoding/json"
)

// Transport is the bare JSON-RPC collaborator this package wraps with
// throttling and retry. It owns request/response framing and the wire
// connection (HTTP, WebSocket, whatever) but not rate limiting — that
// is this package's job, not the transport's. Per spec.md §1, the
// transport itself is an external collaborator, specified only by this
// interface.
type Transport interface {
	// Call issues a single JSON-RPC request and returns its raw result
	// field, or an error if the RPC itself errored or the transport
	// failed.
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)

	// Subscribe opens a push subscription (e.g. eth_subscribe). Not every
	// Transport supports this; one that doesn't returns an error the
	// caller can use to fall back to polling.
	Subscribe(ctx context.Context, method string, params ...any) (Subscription, error)
}

// Subscription is a live feed of JSON-RPC subscription notifications.
type Subscription interface {
	// Notifications delivers each notification's params.result payload.
	// The channel closes when the subscription ends, for any reason.
	Notifications() <-chan json.RawMessage
	// Err returns the reason the subscription ended, after Notifications
	// has closed. Nil if it ended because the caller called Unsubscribe.
	Err() error
	Unsubscribe()
}
