// Package tensor implements predictgrid's data model: a Tensor is an
// immutable dtype+shape+payload value, an Instance is an unordered
// name→Tensor mapping, and order among instances inside a request is
// significant.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
)

// ElementCount returns product(shape); a 0-dim tensor (empty shape) has a
// single element, the scalar case.
func ElementCount(shape []int64) int64 {
	count := int64(1)
	for _, d := range shape {
		count *= d
	}
	return count
}

// Validate checks a tensor's core invariant: numeric payload size must
// equal element_count * itemsize(dtype); byte/string tensors carry one
// bytes_val entry per element and no numeric payload.
func Validate(t *pb.Tensor) error {
	if t == nil {
		return fmt.Errorf("tensor: nil tensor")
	}
	count := ElementCount(t.Shape)
	if t.Dtype.IsNumeric() {
		itemSize := t.Dtype.ItemSize()
		want := count * int64(itemSize)
		if int64(len(t.Data)) != want {
			return fmt.Errorf("tensor: dtype %s expects %d bytes for shape %v, got %d", t.Dtype, want, t.Shape, len(t.Data))
		}
		if len(t.BytesVal) != 0 {
			return fmt.Errorf("tensor: dtype %s must not carry bytes_val", t.Dtype)
		}
	} else {
		if int64(len(t.BytesVal)) != count {
			return fmt.Errorf("tensor: dtype %s expects %d bytes_val entries for shape %v, got %d", t.Dtype, count, t.Shape, len(t.BytesVal))
		}
		if len(t.Data) != 0 {
			return fmt.Errorf("tensor: dtype %s must not carry numeric data", t.Dtype)
		}
	}
	return nil
}

// PackFloat32 packs a flat slice of float32 values little-endian, the wire
// layout for Tensor.data.
func PackFloat32(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// UnpackFloat32 is the inverse of PackFloat32.
func UnpackFloat32(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("tensor: float32 payload length %d not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// PackFloat64 packs a flat slice of float64 values little-endian.
func PackFloat64(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// UnpackFloat64 is the inverse of PackFloat64.
func UnpackFloat64(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("tensor: float64 payload length %d not a multiple of 8", len(data))
	}
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out, nil
}

// PackInt32 packs a flat slice of int32 values little-endian.
func PackInt32(values []int32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

// UnpackInt32 is the inverse of PackInt32.
func UnpackInt32(data []byte) ([]int32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("tensor: int32 payload length %d not a multiple of 4", len(data))
	}
	out := make([]int32, len(data)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// PackInt64 packs a flat slice of int64 values little-endian.
func PackInt64(values []int64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

// UnpackInt64 is the inverse of PackInt64.
func UnpackInt64(data []byte) ([]int64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("tensor: int64 payload length %d not a multiple of 8", len(data))
	}
	out := make([]int64, len(data)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out, nil
}

// PackInt16 packs a flat slice of int16 values little-endian.
func PackInt16(values []int16) []byte {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// UnpackInt16 is the inverse of PackInt16.
func UnpackInt16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("tensor: int16 payload length %d not a multiple of 2", len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out, nil
}

// NewFloat32 builds a DT_FLOAT32 tensor from a flat value slice and shape.
func NewFloat32(shape []int64, values []float32) *pb.Tensor {
	return &pb.Tensor{Dtype: pb.DT_FLOAT32, Shape: shape, Data: PackFloat32(values)}
}

// NewString builds a DT_STRING tensor from element strings.
func NewString(shape []int64, values []string) *pb.Tensor {
	bytesVal := make([][]byte, len(values))
	for i, v := range values {
		bytesVal[i] = []byte(v)
	}
	return &pb.Tensor{Dtype: pb.DT_STRING, Shape: shape, BytesVal: bytesVal}
}
