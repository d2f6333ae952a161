// Package jailbridge implements the core of a plugin-host RPC bridge: a
// bidirectional remote-procedure-call layer that lets a sandboxed worker
// process expose a programmatic interface to a controlling host, and vice
// versa, over a message-oriented transport.
//
// The package is organized around seven cooperating pieces: a Reference
// Store for locally-held callables (store.go), a Promise Pair for one-shot
// asynchronous results (promise.go), a recursive Value Codec that marshals
// callables, remote handles, typed arrays and errors onto the wire
// (codec.go, encoded.go), a Remote Stub Factory that synthesizes local
// callables out of peer method/callback references (stub.go), an Interface
// Registry that holds the locally-exported API (registry.go), a Task
// Dispatcher that drains incoming envelopes against local state
// (dispatcher.go), and a Lifecycle Controller that wires a Transport to all
// of the above (lifecycle.go).
//
// The event-stream transport, the host supervisor, the numeric-array
// provider, CLI parsing and process-tree termination are treated as narrow
// external collaborators (see transport.go, ndarray.go, internal/wireframe
// and internal/supervisor for one concrete adapter of each).
package jailbridge
