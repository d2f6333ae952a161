package jailbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenseArrayProviderFromBytes(t *testing.T) {
	p := DenseArrayProvider{}
	data := []byte{1, 2, 3, 4, 5, 6}
	arr, err := p.FromBytes(data, []int64{2, 3}, "uint8")
	require.NoError(t, err)
	assert.Equal(t, data, arr.Bytes())
	assert.Equal(t, []int64{2, 3}, arr.Shape())
	assert.Equal(t, "uint8", arr.DType())
}

func TestDenseArrayProviderRejectsNegativeDimension(t *testing.T) {
	p := DenseArrayProvider{}
	_, err := p.FromBytes([]byte{1, 2}, []int64{-1, 2}, "uint8")
	assert.Error(t, err)
}
