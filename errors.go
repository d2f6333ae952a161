package jailbridge

import "fmt"

// ErrorKind enumerates the error categories of the bridge protocol. Kinds
// are names, not Go types, so callers switch on Kind rather than on the
// concrete error type.
type ErrorKind string

const (
	ErrUnregisteredClient ErrorKind = "unregistered-client"
	ErrAPIShape           ErrorKind = "api-shape"
	ErrCodecUnsupported   ErrorKind = "codec-unsupported-type"
	ErrNdarrayNoProvider  ErrorKind = "ndarray-missing-provider"
	ErrRemoteCallFailure  ErrorKind = "remote-call-failure"
	ErrTransportLost      ErrorKind = "transport-lost"
	ErrExitHandlerFailure ErrorKind = "exit-handler-failure"
)

// BridgeError is the concrete error type carrying an ErrorKind alongside a
// message and an optional wrapped cause.
type BridgeError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *BridgeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *BridgeError) Unwrap() error { return e.Cause }

// NewBridgeError builds a BridgeError of the given kind.
func NewBridgeError(kind ErrorKind, message string) *BridgeError {
	return &BridgeError{Kind: kind, Message: message}
}

// WrapBridgeError builds a BridgeError wrapping an underlying cause.
func WrapBridgeError(kind ErrorKind, message string, cause error) *BridgeError {
	return &BridgeError{Kind: kind, Message: message, Cause: cause}
}

// IsKind reports whether err is a *BridgeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	be, ok := err.(*BridgeError)
	return ok && be.Kind == kind
}

// StatusRecord is the plain success/failure record administrative requests
// return; they never raise to the transport. Data carries a record's
// payload when one exists (e.g. GetEngineStatus's plugin counts).
type StatusRecord struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// OK builds a successful StatusRecord.
func OK() StatusRecord { return StatusRecord{Success: true} }

// OKWithData builds a successful StatusRecord carrying a data payload.
func OKWithData(data map[string]any) StatusRecord {
	return StatusRecord{Success: true, Data: data}
}

// Failed builds a failed StatusRecord carrying a message.
func Failed(message string) StatusRecord { return StatusRecord{Success: false, Error: message} }
