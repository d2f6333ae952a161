package jailbridge

import "fmt"

// NDArray is the duck-typed capability the codec looks for on any value it
// is asked to encode: raw contiguous bytes, a shape and a dtype string, and
// the ability to reconstruct from those three. Any real numeric-array
// library stays out of scope; this interface is the narrow boundary the
// codec actually depends on.
type NDArray interface {
	Bytes() []byte
	Shape() []int64
	DType() string
}

// NDArrayProvider reconstructs an NDArray from raw bytes, mirroring
// np.frombuffer(bytes, dtype).reshape(shape) from the reference
// implementation. A Session with no provider registered cannot decode
// "ndarray" leaves and reports ErrNdarrayNoProvider instead of silently
// losing data.
type NDArrayProvider interface {
	FromBytes(data []byte, shape []int64, dtype string) (NDArray, error)
}

// denseArray is a reference in-memory NDArray used by tests and example
// plugins to exercise the ndarray codec path end to end.
type denseArray struct {
	data  []byte
	shape []int64
	dtype string
}

// NewDenseArray builds a reference NDArray over raw bytes.
func NewDenseArray(data []byte, shape []int64, dtype string) NDArray {
	return &denseArray{data: data, shape: shape, dtype: dtype}
}

func (d *denseArray) Bytes() []byte   { return d.data }
func (d *denseArray) Shape() []int64  { return d.shape }
func (d *denseArray) DType() string   { return d.dtype }

// DenseArrayProvider is the NDArrayProvider counterpart of NewDenseArray.
type DenseArrayProvider struct{}

func (DenseArrayProvider) FromBytes(data []byte, shape []int64, dtype string) (NDArray, error) {
	want := int64(1)
	for _, s := range shape {
		want *= s
	}
	if want < 0 {
		return nil, fmt.Errorf("jailbridge: negative ndarray dimension in shape %v", shape)
	}
	return &denseArray{data: data, shape: shape, dtype: dtype}, nil
}
