package jailbridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JailedType is the sum type tag carried by every encoded leaf
// (the wire's "__jailed_type__" discriminator).
type JailedType string

const (
	JailArgument        JailedType = "argument"
	JailCallback        JailedType = "callback"
	JailInterface       JailedType = "interface"
	JailPluginInterface JailedType = "plugin_interface"
	JailNdarray         JailedType = "ndarray"
	JailError           JailedType = "error"
)

// Leaf is a single tagged value on the wire: {__jailed_type__, __value__,
// ...extras}. Which extra fields are populated depends on Kind, matching
// the re-architecture guidance of turning dynamic per-value tagging into a
// closed sum type over which the codec is total.
type Leaf struct {
	Kind JailedType `json:"__jailed_type__"`

	// Value holds: the literal for "argument", the message string for
	// "error", the constant "f" for "callback", the exported name for
	// "interface", and the member name for "plugin_interface".
	Value any `json:"__value__"`

	// Num is the Reference Store id, populated for "callback" leaves.
	Num *uint64 `json:"num,omitempty"`

	// PluginID is the owning plugin-interface table key, populated for
	// "plugin_interface" leaves.
	PluginID *string `json:"__plugin_id__,omitempty"`

	// Shape and DType describe an "ndarray" leaf. Bytes travel in Value
	// as either one base64 string (whole buffer) or a list of base64
	// strings (ARRAY_CHUNK slices).
	Shape []int64 `json:"__shape__,omitempty"`
	DType *string `json:"__dtype__,omitempty"`
}

// Encoded is the recursive wire tree: every leaf is a tagged Leaf; plain
// collections (object, array) are untagged and recursed into. Exactly one
// of Leaf, Array, Object is populated, unless the value is JSON null (all
// three nil).
type Encoded struct {
	Leaf   *Leaf
	Array  []Encoded
	Object *Object
}

// Object is an ordered object: key iteration order of the source mapping
// is preserved on the wire, per the codec's stable-ordering invariant.
type Object struct {
	fields []objectField
}

type objectField struct {
	key   string
	value Encoded
}

// NewObject builds an empty ordered Object.
func NewObject() *Object { return &Object{} }

// Set appends or overwrites a key, preserving first-insertion order.
func (o *Object) Set(key string, value Encoded) *Object {
	for i := range o.fields {
		if o.fields[i].key == key {
			o.fields[i].value = value
			return o
		}
	}
	o.fields = append(o.fields, objectField{key: key, value: value})
	return o
}

// Get looks up a key, reporting whether it was present.
func (o *Object) Get(key string) (Encoded, bool) {
	if o == nil {
		return Encoded{}, false
	}
	for _, f := range o.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return Encoded{}, false
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, len(o.fields))
	for i, f := range o.fields {
		keys[i] = f.key
	}
	return keys
}

// Len reports the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.fields)
}

// EncodedNull is the encoded form of a null/absent value.
var EncodedNull = Encoded{}

// IsNull reports whether e encodes JSON null.
func (e Encoded) IsNull() bool { return e.Leaf == nil && e.Array == nil && e.Object == nil }

// leafKeys is used to detect an already-tagged leaf when decoding raw JSON.
var leafKeys = map[string]bool{"__jailed_type__": true, "__value__": true}

// MarshalJSON renders Encoded in the documented wire shape: tagged leaves
// as {__jailed_type__,...}, collections untagged.
func (e Encoded) MarshalJSON() ([]byte, error) {
	switch {
	case e.Leaf != nil:
		return json.Marshal(e.Leaf)
	case e.Array != nil:
		return json.Marshal(e.Array)
	case e.Object != nil:
		return e.Object.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

// MarshalJSON renders the Object preserving field insertion order, which
// encoding/json's map support cannot do on its own.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses Encoded, distinguishing a tagged leaf from an
// untagged object by probing for the "__jailed_type__"/"__value__" keys,
// and preserving object key order via a token-level decode.
func (e *Encoded) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || len(trimmed) == 0 {
		*e = Encoded{}
		return nil
	}
	switch trimmed[0] {
	case '[':
		var arr []Encoded
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return err
		}
		if arr == nil {
			arr = []Encoded{}
		}
		*e = Encoded{Array: arr}
		return nil
	case '{':
		probe := map[string]json.RawMessage{}
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return err
		}
		_, hasType := probe["__jailed_type__"]
		_, hasValue := probe["__value__"]
		if hasType && hasValue {
			var leaf Leaf
			if err := json.Unmarshal(trimmed, &leaf); err != nil {
				return err
			}
			*e = Encoded{Leaf: &leaf}
			return nil
		}
		obj, err := decodeOrderedObject(trimmed)
		if err != nil {
			return err
		}
		*e = Encoded{Object: obj}
		return nil
	default:
		return fmt.Errorf("jailbridge: unexpected encoded leaf %q", trimmed)
	}
}

// decodeOrderedObject walks the JSON token stream to recover key order,
// since map[string]json.RawMessage does not preserve it.
func decodeOrderedObject(data []byte) (*Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("jailbridge: expected object")
	}
	obj := NewObject()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("jailbridge: expected string object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		var val Encoded
		if err := json.Unmarshal(raw, &val); err != nil {
			return nil, err
		}
		obj.Set(key, val)
	}
	return obj, nil
}

// Wrapped is the {args: Encoded} envelope field produced by the codec.
type Wrapped struct {
	Args Encoded `json:"args"`
}
