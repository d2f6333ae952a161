package jailbridge

import "encoding/json"

// EnvelopeType tags the union of messages exchanged over the transport.
type EnvelopeType string

const (
	EnvInitialized     EnvelopeType = "initialized"
	EnvSetInterface    EnvelopeType = "setInterface"
	EnvMethod          EnvelopeType = "method"
	EnvCallback        EnvelopeType = "callback"
	EnvExecute         EnvelopeType = "execute"
	EnvExecuteSuccess  EnvelopeType = "executeSuccess"
	EnvMessage         EnvelopeType = "message"
	EnvImport          EnvelopeType = "import"
	EnvImportSuccess   EnvelopeType = "importSuccess"
	EnvDisconnect      EnvelopeType = "disconnect"
)

// InterfaceSlot is one entry of a setInterface envelope's "api" list.
type InterfaceSlot struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Envelope is the unit exchanged over the transport, tagged on Type. Not
// every field applies to every type; unused fields are left zero rather
// than splitting into a family of per-type structs.
type Envelope struct {
	Type EnvelopeType `json:"type"`

	// initialized
	DedicatedThread bool `json:"dedicatedThread,omitempty"`

	// setInterface
	API []InterfaceSlot `json:"api,omitempty"`

	// method / plugin_interface dispatch
	Name string  `json:"name,omitempty"`
	PID  *string `json:"pid,omitempty"`

	// callback dispatch: Id is the caller-chosen correlation id (may be
	// absent/null), Num is the Reference Store id being invoked.
	Id  *uint64 `json:"id,omitempty"`
	Num *uint64 `json:"num,omitempty"`

	Args    *Wrapped `json:"args,omitempty"`
	Promise *Wrapped `json:"promise,omitempty"`

	// execute: arbitrary plugin code payload.
	Code string `json:"code,omitempty"`

	// message: an envelope enqueued verbatim on the worker task queue.
	Data json.RawMessage `json:"data,omitempty"`

	// import / importSuccess
	URL string `json:"url,omitempty"`
}

// CallbackID returns the envelope-level correlation id to thread through
// codec decoding: present for "callback" envelopes, absent (nil) for
// "method" envelopes, whose synthesized callback stubs carry a nil id.
func (e *Envelope) CallbackID() *uint64 { return e.Id }
