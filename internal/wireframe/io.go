package wireframe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameReader reads length-prefixed CBOR frames from a stream.
type FrameReader struct {
	r      io.Reader
	limits Limits
}

// NewFrameReader builds a FrameReader with default limits.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, limits: DefaultLimits()}
}

// SetLimits overrides the reader's enforced limits, typically after a
// handshake negotiates tighter ones.
func (fr *FrameReader) SetLimits(limits Limits) { fr.limits = limits }

// ReadFrame reads and decodes one frame.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if int(length) > MaxFrameHardLimit {
		return nil, fmt.Errorf("wireframe: frame size %d exceeds hard limit %d", length, MaxFrameHardLimit)
	}
	if fr.limits.MaxFrame > 0 && int(length) > fr.limits.MaxFrame {
		return nil, fmt.Errorf("wireframe: frame size %d exceeds negotiated limit %d", length, fr.limits.MaxFrame)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return nil, err
	}
	frame, err := DecodeFrame(buf)
	if err != nil {
		return nil, err
	}
	if err := frame.VerifyChecksum(); err != nil {
		return nil, err
	}
	return frame, nil
}

// FrameWriter writes length-prefixed CBOR frames to a stream.
type FrameWriter struct {
	w      io.Writer
	limits Limits
}

// NewFrameWriter builds a FrameWriter with default limits.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, limits: DefaultLimits()}
}

// SetLimits overrides the writer's enforced limits.
func (fw *FrameWriter) SetLimits(limits Limits) { fw.limits = limits }

// WriteFrame encodes and writes one frame.
func (fw *FrameWriter) WriteFrame(frame *Frame) error {
	buf, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	if len(buf) > MaxFrameHardLimit {
		return fmt.Errorf("wireframe: encoded frame size %d exceeds hard limit %d", len(buf), MaxFrameHardLimit)
	}
	if fw.limits.MaxFrame > 0 && len(buf) > fw.limits.MaxFrame {
		return fmt.Errorf("wireframe: encoded frame size %d exceeds negotiated limit %d", len(buf), fw.limits.MaxFrame)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = fw.w.Write(buf)
	return err
}

// HandshakeInitiate performs the HELLO exchange from the initiating
// (host) side and returns the negotiated limits.
func HandshakeInitiate(reader *FrameReader, writer *FrameWriter) (Limits, error) {
	if err := writer.WriteFrame(NewHello(DefaultLimits())); err != nil {
		return Limits{}, fmt.Errorf("wireframe: writing hello: %w", err)
	}
	resp, err := reader.ReadFrame()
	if err != nil {
		return Limits{}, fmt.Errorf("wireframe: reading hello response: %w", err)
	}
	if resp.Type != FrameTypeHello {
		return Limits{}, errors.New("wireframe: expected hello response")
	}
	peer := limitsFromMeta(resp.Meta)
	negotiated := Negotiate(DefaultLimits(), peer)
	reader.SetLimits(negotiated)
	writer.SetLimits(negotiated)
	return negotiated, nil
}

// HandshakeAccept performs the HELLO exchange from the accepting (plugin)
// side and returns the negotiated limits.
func HandshakeAccept(reader *FrameReader, writer *FrameWriter) (Limits, error) {
	hello, err := reader.ReadFrame()
	if err != nil {
		return Limits{}, fmt.Errorf("wireframe: reading hello: %w", err)
	}
	if hello.Type != FrameTypeHello {
		return Limits{}, errors.New("wireframe: expected hello frame")
	}
	peer := limitsFromMeta(hello.Meta)
	if err := writer.WriteFrame(NewHello(DefaultLimits())); err != nil {
		return Limits{}, fmt.Errorf("wireframe: writing hello response: %w", err)
	}
	negotiated := Negotiate(DefaultLimits(), peer)
	reader.SetLimits(negotiated)
	writer.SetLimits(negotiated)
	return negotiated, nil
}

func limitsFromMeta(meta map[string]any) Limits {
	limits := DefaultLimits()
	if meta == nil {
		return limits
	}
	if v := extractInt(meta, "max_frame"); v > 0 {
		limits.MaxFrame = v
	}
	if v := extractInt(meta, "max_chunk"); v > 0 {
		limits.MaxChunk = v
	}
	return limits
}
