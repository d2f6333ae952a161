package wireframe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/filegrind/jailbridge"
)

// Adapter implements jailbridge.Transport over any io.ReadWriteCloser,
// framing each envelope as one length-prefixed CBOR Frame whose payload is
// the envelope's canonical JSON encoding. CBOR governs the frame envelope
// (length, checksum, handshake limits); JSON remains the payload format
// the rest of this module already speaks, so nothing above this adapter
// needs to know which transport is in use.
type Adapter struct {
	conn   io.ReadWriteCloser
	reader *FrameReader
	writer *FrameWriter
	limits Limits

	writeMu sync.Mutex

	recvErr  error
	recvOnce sync.Once
	closed   chan struct{}
}

// DialHost wraps conn as a host-side Adapter, initiating the handshake.
func DialHost(conn io.ReadWriteCloser) (*Adapter, error) {
	return newAdapter(conn, true)
}

// AcceptPlugin wraps conn as a plugin-side Adapter, accepting the
// handshake the host side initiates.
func AcceptPlugin(conn io.ReadWriteCloser) (*Adapter, error) {
	return newAdapter(conn, false)
}

func newAdapter(conn io.ReadWriteCloser, initiate bool) (*Adapter, error) {
	a := &Adapter{
		conn:   conn,
		reader: NewFrameReader(conn),
		writer: NewFrameWriter(conn),
		closed: make(chan struct{}),
	}
	var negotiated Limits
	var err error
	if initiate {
		negotiated, err = HandshakeInitiate(a.reader, a.writer)
	} else {
		negotiated, err = HandshakeAccept(a.reader, a.writer)
	}
	if err != nil {
		return nil, err
	}
	a.limits = negotiated
	return a, nil
}

// Emit sends env as one envelope frame.
func (a *Adapter) Emit(env jailbridge.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wireframe: marshaling envelope: %w", err)
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.writer.WriteFrame(NewEnvelopeFrame(payload))
}

// Recv blocks for the next envelope frame, skipping heartbeats. The
// underlying read is not itself cancellable; closing the Adapter (or
// having ctx already cancelled) is what unblocks a pending Recv.
func (a *Adapter) Recv(ctx context.Context) (jailbridge.Envelope, error) {
	for {
		select {
		case <-ctx.Done():
			return jailbridge.Envelope{}, ctx.Err()
		case <-a.closed:
			return jailbridge.Envelope{}, io.ErrClosedPipe
		default:
		}
		frame, err := a.reader.ReadFrame()
		if err != nil {
			return jailbridge.Envelope{}, err
		}
		switch frame.Type {
		case FrameTypeHeartbeat:
			continue
		case FrameTypeEnvelope:
			var env jailbridge.Envelope
			if err := json.Unmarshal(frame.Payload, &env); err != nil {
				return jailbridge.Envelope{}, fmt.Errorf("wireframe: unmarshaling envelope: %w", err)
			}
			return env, nil
		default:
			continue
		}
	}
}

// Close closes the underlying connection, unblocking any pending Recv.
func (a *Adapter) Close() error {
	a.recvOnce.Do(func() { close(a.closed) })
	return a.conn.Close()
}
