package jailbridge

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// arrayChunkSize is the byte threshold above which an ndarray's backing
// buffer is split into multiple base64 chunks rather than sent as one
// string.
const arrayChunkSize = 1_000_000

// RemoteError is an error value that originated on the peer side of the
// bridge, round-tripped through an "error" leaf. It is distinguished from
// a locally constructed error only by provenance; callers that need to
// tell the two apart can type-assert to RemoteError.
type RemoteError string

func (e RemoteError) Error() string { return string(e) }

// DecodeContext carries the information a decode pass threads through to
// any remote stub it synthesizes along the way: the originating envelope's
// correlation id (unused by this package directly, kept for callers that
// want to log call chains) and whether callback leaves found while
// decoding should round-trip through a promise.
type DecodeContext struct {
	EnvelopeID  *uint64
	WithPromise bool
}

// Encode is the Value Codec's local-to-wire direction (component C). It is
// total: every Go value this package's API surface can hand it produces an
// Encoded tree, falling back to an opaque "argument" leaf for anything it
// does not specifically recognize rather than failing the call.
func (s *Session) Encode(v any) (Encoded, error) {
	switch vv := v.(type) {
	case nil:
		return EncodedNull, nil
	case Encoded:
		return vv, nil
	case *Object:
		return Encoded{Object: vv}, nil
	case error:
		return Encoded{Leaf: &Leaf{Kind: JailError, Value: vv.Error()}}, nil
	case Callable:
		return s.encodeCallable(vv), nil
	case NDArray:
		return s.encodeNDArray(vv), nil
	case PluginAPI:
		return s.encodePluginAPI(vv)
	case []byte:
		return s.encodeRawBytes(vv), nil
	case []any:
		arr := make([]Encoded, len(vv))
		for i, item := range vv {
			enc, err := s.Encode(item)
			if err != nil {
				return Encoded{}, err
			}
			arr[i] = enc
		}
		return Encoded{Array: arr}, nil
	case []APIEntry:
		obj := NewObject()
		for _, entry := range vv {
			enc, err := s.Encode(entry.Value)
			if err != nil {
				return Encoded{}, err
			}
			obj.Set(entry.Name, enc)
		}
		return Encoded{Object: obj}, nil
	case map[string]any:
		// Go map iteration order is randomized; callers that need the
		// documented "iteration order of the source mapping" guarantee
		// should build an *Object or []APIEntry instead.
		obj := NewObject()
		for k, item := range vv {
			enc, err := s.Encode(item)
			if err != nil {
				return Encoded{}, err
			}
			obj.Set(k, enc)
		}
		return Encoded{Object: obj}, nil
	default:
		return s.encodePrimitive(vv)
	}
}

func (s *Session) encodeArgs(args []any) (Encoded, error) {
	arr := make([]Encoded, len(args))
	for i, a := range args {
		enc, err := s.Encode(a)
		if err != nil {
			return Encoded{}, err
		}
		arr[i] = enc
	}
	return Encoded{Array: arr}, nil
}

// encodeCallable checks exported-interface identity before minting a fresh
// Reference Store entry: a callable that is already one of the session's
// exported members is re-sent by name, not by id.
func (s *Session) encodeCallable(c Callable) Encoded {
	if name, ok := s.Registry.NameFor(c); ok {
		return Encoded{Leaf: &Leaf{Kind: JailInterface, Value: name}}
	}
	id := s.store.Put(c)
	return Encoded{Leaf: &Leaf{Kind: JailCallback, Value: "f", Num: &id}}
}

func (s *Session) encodeNDArray(arr NDArray) Encoded {
	data := arr.Bytes()
	dtype := arr.DType()
	var value any
	if len(data) > arrayChunkSize {
		chunks := make([]string, 0, (len(data)+arrayChunkSize-1)/arrayChunkSize)
		for i := 0; i < len(data); i += arrayChunkSize {
			end := i + arrayChunkSize
			if end > len(data) {
				end = len(data)
			}
			chunks = append(chunks, base64.StdEncoding.EncodeToString(data[i:end]))
		}
		value = chunks
	} else {
		value = base64.StdEncoding.EncodeToString(data)
	}
	return Encoded{Leaf: &Leaf{Kind: JailNdarray, Value: value, Shape: arr.Shape(), DType: &dtype}}
}

// encodeRawBytes treats a plain []byte argument (one that does not satisfy
// NDArray) as text, on the assumption that raw bytes crossing the bridge
// as a bare argument are UTF-8. Invalid UTF-8 is logged rather than
// rejected: decoding is lossy, not fatal.
func (s *Session) encodeRawBytes(b []byte) Encoded {
	str := string(b)
	if !utf8.ValidString(str) {
		s.logger.Warn("encoding non-UTF8 byte slice as a lossy string argument")
	}
	return Encoded{Leaf: &Leaf{Kind: JailArgument, Value: str}}
}

// encodePluginAPI renders a PluginAPI's Callable members as "plugin_interface"
// leaves addressable by (pid, name), registering each in the session's
// plugin-interface table so an inbound method dispatch can find it again.
func (s *Session) encodePluginAPI(p PluginAPI) (Encoded, error) {
	s.mu.Lock()
	table := s.pluginInterfaces[p.ID]
	if table == nil {
		table = make(map[string]Callable)
		s.pluginInterfaces[p.ID] = table
	}
	s.mu.Unlock()

	obj := NewObject()
	for _, m := range p.Members {
		c, ok := m.Value.(Callable)
		if !ok {
			// Non-callable members are dropped from the descriptor: only
			// the plugin's exposed methods are addressable remotely.
			continue
		}
		s.mu.Lock()
		table[m.Name] = c
		s.mu.Unlock()
		pid := p.ID
		obj.Set(m.Name, Encoded{Leaf: &Leaf{Kind: JailPluginInterface, Value: m.Name, PluginID: &pid}})
	}
	return Encoded{Object: obj}, nil
}

func (s *Session) encodePrimitive(v any) (Encoded, error) {
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return Encoded{Leaf: &Leaf{Kind: JailArgument, Value: v}}, nil
	default:
		s.logger.Debug(fmt.Sprintf("encoding value of unrecognized type %T as opaque argument", v))
		return Encoded{Leaf: &Leaf{Kind: JailArgument, Value: v}}, nil
	}
}

// Decode is the Value Codec's wire-to-local direction. It is total over
// the closed Encoded sum type: collections recurse, leaves dispatch on
// JailedType, and an unrecognized kind is a codec-unsupported-type error
// rather than a silent pass-through.
func (s *Session) Decode(e Encoded, dctx DecodeContext) (any, error) {
	switch {
	case e.IsNull():
		return nil, nil
	case e.Leaf != nil:
		return s.decodeLeaf(e.Leaf, dctx)
	case e.Array != nil:
		out := make([]any, len(e.Array))
		for i, item := range e.Array {
			v, err := s.Decode(item, dctx)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case e.Object != nil:
		out := make(map[string]any, e.Object.Len())
		for _, key := range e.Object.Keys() {
			item, _ := e.Object.Get(key)
			v, err := s.Decode(item, dctx)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	default:
		return nil, nil
	}
}

func (s *Session) decodeLeaf(leaf *Leaf, dctx DecodeContext) (any, error) {
	switch leaf.Kind {
	case JailArgument:
		return leaf.Value, nil
	case JailError:
		msg, _ := leaf.Value.(string)
		return nil, RemoteError(msg)
	case JailCallback:
		if leaf.Num == nil {
			return nil, NewBridgeError(ErrCodecUnsupported, "callback leaf missing num")
		}
		return s.newRemoteCallback(*leaf.Num, dctx.WithPromise), nil
	case JailInterface:
		name, _ := leaf.Value.(string)
		if existing, ok := s.RemoteNamed(name); ok {
			return existing, nil
		}
		return s.newRemoteMethod(name, nil), nil
	case JailPluginInterface:
		name, _ := leaf.Value.(string)
		return s.newRemoteMethod(name, leaf.PluginID), nil
	case JailNdarray:
		return s.decodeNdarray(leaf)
	default:
		return nil, NewBridgeError(ErrCodecUnsupported, fmt.Sprintf("unknown jailed type %q", leaf.Kind))
	}
}

func (s *Session) decodeNdarray(leaf *Leaf) (any, error) {
	if s.ndarray == nil {
		return nil, NewBridgeError(ErrNdarrayNoProvider, "no ndarray provider registered for this session")
	}
	raw, err := decodeNdarrayBytes(leaf.Value)
	if err != nil {
		return nil, err
	}
	dtype := ""
	if leaf.DType != nil {
		dtype = *leaf.DType
	}
	arr, err := s.ndarray.FromBytes(raw, leaf.Shape, dtype)
	if err != nil {
		return nil, WrapBridgeError(ErrCodecUnsupported, "ndarray reconstruction failed", err)
	}
	return arr, nil
}

// decodeNdarrayBytes accepts either a single base64 string (whole buffer)
// or a list of base64 chunk strings. Any other container shape is a hard
// error rather than a best-effort guess, per the resolved open question
// on non-list ndarray chunk containers.
func decodeNdarrayBytes(v any) ([]byte, error) {
	switch vv := v.(type) {
	case string:
		b, err := base64.StdEncoding.DecodeString(vv)
		if err != nil {
			return nil, WrapBridgeError(ErrCodecUnsupported, "invalid ndarray base64 payload", err)
		}
		return b, nil
	case []any:
		var buf bytes.Buffer
		for _, chunk := range vv {
			str, ok := chunk.(string)
			if !ok {
				return nil, NewBridgeError(ErrCodecUnsupported, "ndarray chunk container must hold byte strings")
			}
			b, err := base64.StdEncoding.DecodeString(str)
			if err != nil {
				return nil, WrapBridgeError(ErrCodecUnsupported, "invalid ndarray chunk base64 payload", err)
			}
			buf.Write(b)
		}
		return buf.Bytes(), nil
	case []string:
		chunks := make([]any, len(vv))
		for i, chunk := range vv {
			chunks[i] = chunk
		}
		return decodeNdarrayBytes(chunks)
	default:
		return nil, NewBridgeError(ErrCodecUnsupported, "ndarray value must be a byte string or a list of byte-string chunks")
	}
}
