package jailbridge

import "context"

// Transport is the narrow boundary between a Lifecycle Controller and
// whatever actually carries envelopes to and from the peer process — a
// stdio pipe, a socket.io connection, an in-memory channel in tests, or
// the CBOR-framed adapter in internal/wireframe. It is the one external
// collaborator this package depends on for wire delivery; nothing above
// this interface cares how bytes actually move.
type Transport interface {
	// Emit sends one outbound envelope to the peer.
	Emit(env Envelope) error
	// Recv blocks for the next inbound envelope, returning ctx.Err() if
	// ctx is done first.
	Recv(ctx context.Context) (Envelope, error)
	// Close releases any resources held by the transport. Recv must
	// return an error promptly after Close is called.
	Close() error
}
