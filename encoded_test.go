package jailbridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectPreservesInsertionOrder(t *testing.T) {
	obj := NewObject().
		Set("z", Encoded{Leaf: &Leaf{Kind: JailArgument, Value: "1"}}).
		Set("a", Encoded{Leaf: &Leaf{Kind: JailArgument, Value: "2"}}).
		Set("m", Encoded{Leaf: &Leaf{Kind: JailArgument, Value: "3"}})

	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())

	data, err := json.Marshal(Encoded{Object: obj})
	require.NoError(t, err)
	assert.Equal(t, `{"z":{"__jailed_type__":"argument","__value__":"1"},"a":{"__jailed_type__":"argument","__value__":"2"},"m":{"__jailed_type__":"argument","__value__":"3"}}`, string(data))
}

func TestObjectSetOverwritesInPlace(t *testing.T) {
	obj := NewObject().
		Set("k", Encoded{Leaf: &Leaf{Kind: JailArgument, Value: "first"}}).
		Set("k", Encoded{Leaf: &Leaf{Kind: JailArgument, Value: "second"}})

	assert.Equal(t, 1, obj.Len())
	v, ok := obj.Get("k")
	require.True(t, ok)
	assert.Equal(t, "second", v.Leaf.Value)
}

func TestEncodedUnmarshalPreservesObjectOrder(t *testing.T) {
	raw := `{"beta": {"__jailed_type__":"argument","__value__":1}, "alpha": {"__jailed_type__":"argument","__value__":2}}`
	var enc Encoded
	require.NoError(t, json.Unmarshal([]byte(raw), &enc))
	require.NotNil(t, enc.Object)
	assert.Equal(t, []string{"beta", "alpha"}, enc.Object.Keys())
}

func TestEncodedUnmarshalDistinguishesLeafFromObject(t *testing.T) {
	var leaf Encoded
	require.NoError(t, json.Unmarshal([]byte(`{"__jailed_type__":"argument","__value__":"x"}`), &leaf))
	require.NotNil(t, leaf.Leaf)

	var plain Encoded
	require.NoError(t, json.Unmarshal([]byte(`{"foo":{"__jailed_type__":"argument","__value__":1}}`), &plain))
	require.NotNil(t, plain.Object)
}

func TestEncodedNullRoundtripsThroughJSON(t *testing.T) {
	data, err := json.Marshal(EncodedNull)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	var back Encoded
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.IsNull())
}

func TestEnvelopeCallbackID(t *testing.T) {
	id := uint64(42)
	env := Envelope{Type: EnvCallback, Id: &id}
	require.NotNil(t, env.CallbackID())
	assert.Equal(t, id, *env.CallbackID())

	method := Envelope{Type: EnvMethod}
	assert.Nil(t, method.CallbackID())
}
