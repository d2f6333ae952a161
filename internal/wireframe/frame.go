// Package wireframe is the Transport Adapter (component H): a
// length-prefixed CBOR framing layer that carries jailbridge's JSON
// envelope bytes as an opaque payload, plus a FNV-1a checksum and a
// HELLO/limits handshake. It is adapted from a capability-routing CBOR
// transport's frame/io/limits machinery, stripped of everything specific
// to that protocol's relay and multi-stream routing concerns — jailbridge
// needs one envelope per frame, not a multiplexed request/response/stream
// graph.
package wireframe

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ProtocolVersion is this adapter's wire version, independent of any
// upstream protocol it was adapted from.
const ProtocolVersion uint8 = 1

// FrameType discriminates a Frame's purpose.
type FrameType uint8

const (
	FrameTypeHello     FrameType = 0
	FrameTypeEnvelope  FrameType = 1
	FrameTypeHeartbeat FrameType = 2
)

func (ft FrameType) String() string {
	switch ft {
	case FrameTypeHello:
		return "HELLO"
	case FrameTypeEnvelope:
		return "ENVELOPE"
	case FrameTypeHeartbeat:
		return "HEARTBEAT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", ft)
	}
}

// Frame is the unit written to the wire: a CBOR-encoded envelope around an
// opaque JSON payload. Integer CBOR map keys keep frames compact, the way
// the adapted protocol's Frame struct does.
type Frame struct {
	Version  uint8          `cbor:"1,keyasint"`
	Type     FrameType      `cbor:"2,keyasint"`
	Payload  []byte         `cbor:"3,keyasint,omitempty"`
	Checksum uint64         `cbor:"4,keyasint,omitempty"`
	Meta     map[string]any `cbor:"5,keyasint,omitempty"`
}

func newFrame(frameType FrameType) *Frame {
	return &Frame{Version: ProtocolVersion, Type: frameType}
}

// NewEnvelopeFrame wraps already-marshaled envelope JSON bytes.
func NewEnvelopeFrame(payload []byte) *Frame {
	f := newFrame(FrameTypeEnvelope)
	f.Payload = payload
	f.Checksum = ComputeChecksum(payload)
	return f
}

// NewHello builds a handshake frame advertising this side's limits.
func NewHello(limits Limits) *Frame {
	f := newFrame(FrameTypeHello)
	f.Meta = map[string]any{
		"max_frame": limits.MaxFrame,
		"max_chunk": limits.MaxChunk,
	}
	return f
}

// NewHeartbeat builds a keepalive frame carrying no payload.
func NewHeartbeat() *Frame { return newFrame(FrameTypeHeartbeat) }

// VerifyChecksum reports whether f's checksum matches its payload.
func (f *Frame) VerifyChecksum() error {
	if f.Type != FrameTypeEnvelope {
		return nil
	}
	if got := ComputeChecksum(f.Payload); got != f.Checksum {
		return fmt.Errorf("wireframe: checksum mismatch: want %d, got %d", f.Checksum, got)
	}
	return nil
}

// ComputeChecksum computes the FNV-1a 64-bit hash of data.
func ComputeChecksum(data []byte) uint64 {
	const offsetBasis = uint64(0xcbf29ce484222325)
	const prime = uint64(0x100000001b3)
	hash := offsetBasis
	for _, b := range data {
		hash ^= uint64(b)
		hash *= prime
	}
	return hash
}

// EncodeFrame renders a Frame to CBOR bytes.
func EncodeFrame(f *Frame) ([]byte, error) { return cbor.Marshal(f) }

// DecodeFrame parses CBOR bytes into a Frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func extractInt(meta map[string]any, key string) int {
	v, ok := meta[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
