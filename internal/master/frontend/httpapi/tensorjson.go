// tensorjson.go implements the scalar/array/base64 decode-and-encode rules
// for the HTTP JSON predict surface.
package httpapi

import (
	"encoding/base64"
	"fmt"

	"github.com/gin-gonic/gin"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/tensor"
)

// decodeInstances accepts the JSON value bound to the top-level "instances"
// key: either a single instance object or an array of them.
func decodeInstances(v interface{}) ([]*pb.Instance, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("missing \"instances\" field")
	case []interface{}:
		out := make([]*pb.Instance, len(val))
		for i, item := range val {
			inst, err := decodeInstance(item)
			if err != nil {
				return nil, fmt.Errorf("instance %d: %w", i, err)
			}
			out[i] = inst
		}
		return out, nil
	case map[string]interface{}:
		inst, err := decodeInstance(val)
		if err != nil {
			return nil, err
		}
		return []*pb.Instance{inst}, nil
	default:
		return nil, fmt.Errorf("\"instances\" must be an object or array of objects")
	}
}

func decodeInstance(v interface{}) (*pb.Instance, error) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("instance must be a JSON object")
	}
	items := make(map[string]*pb.Tensor, len(obj))
	for name, field := range obj {
		t, err := decodeField(field)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		items[name] = t
	}
	return &pb.Instance{Items: items}, nil
}

// decodeField implements the three field forms a JSON instance accepts:
// scalar, nested array, or a {"b64": ...} object.
func decodeField(v interface{}) (*pb.Tensor, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		if _, ok := val["b64"]; ok {
			return decodeBase64Field(val)
		}
		return nil, fmt.Errorf("object field must be of the form {\"b64\": ...}")
	case []interface{}:
		return decodeArrayField(val)
	case string:
		return tensor.NewString(nil, []string{val}), nil
	case bool:
		data := []byte{0}
		if val {
			data[0] = 1
		}
		return &pb.Tensor{Dtype: pb.DT_BOOL, Data: data}, nil
	case float64:
		if val == float64(int64(val)) {
			return &pb.Tensor{Dtype: pb.DT_INT32, Data: tensor.PackInt32([]int32{int32(val)})}, nil
		}
		return &pb.Tensor{Dtype: pb.DT_FLOAT32, Data: tensor.PackFloat32([]float32{float32(val)})}, nil
	case nil:
		return nil, fmt.Errorf("null field is not a valid tensor value")
	default:
		return nil, fmt.Errorf("unsupported field type %T", v)
	}
}

// decodeArrayField infers shape from nesting depth and rejects ragged
// arrays (every sibling sub-array must share the same length and leaf
// dtype).
func decodeArrayField(arr []interface{}) (*pb.Tensor, error) {
	shape, leaves, err := flattenArray(arr)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return &pb.Tensor{Dtype: pb.DT_FLOAT32, Shape: shape}, nil
	}

	switch leaves[0].(type) {
	case string:
		values := make([]string, len(leaves))
		for i, l := range leaves {
			s, ok := l.(string)
			if !ok {
				return nil, fmt.Errorf("array leaves must share one dtype")
			}
			values[i] = s
		}
		return tensor.NewString(shape, values), nil
	case bool:
		data := make([]byte, len(leaves))
		for i, l := range leaves {
			b, ok := l.(bool)
			if !ok {
				return nil, fmt.Errorf("array leaves must share one dtype")
			}
			if b {
				data[i] = 1
			}
		}
		return &pb.Tensor{Dtype: pb.DT_BOOL, Shape: shape, Data: data}, nil
	case float64:
		allInt := true
		values := make([]float64, len(leaves))
		for i, l := range leaves {
			f, ok := l.(float64)
			if !ok {
				return nil, fmt.Errorf("array leaves must share one dtype")
			}
			values[i] = f
			if f != float64(int64(f)) {
				allInt = false
			}
		}
		if allInt {
			ints := make([]int32, len(values))
			for i, f := range values {
				ints[i] = int32(f)
			}
			return &pb.Tensor{Dtype: pb.DT_INT32, Shape: shape, Data: tensor.PackInt32(ints)}, nil
		}
		floats := make([]float32, len(values))
		for i, f := range values {
			floats[i] = float32(f)
		}
		return tensor.NewFloat32(shape, floats), nil
	default:
		return nil, fmt.Errorf("unsupported array leaf type %T", leaves[0])
	}
}

// flattenArray walks nested []interface{} values, inferring the shape and
// returning the flattened leaf values in row-major order. It rejects
// ragged arrays (sibling sub-arrays of differing length).
func flattenArray(arr []interface{}) ([]int64, []interface{}, error) {
	if len(arr) == 0 {
		return []int64{0}, nil, nil
	}

	if _, ok := arr[0].([]interface{}); ok {
		var shape []int64
		var leaves []interface{}
		for i, elem := range arr {
			sub, ok := elem.([]interface{})
			if !ok {
				return nil, nil, fmt.Errorf("ragged array: element %d is not a nested array like its siblings", i)
			}
			subShape, subLeaves, err := flattenArray(sub)
			if err != nil {
				return nil, nil, err
			}
			if i == 0 {
				shape = subShape
			} else if !shapeEqual(shape, subShape) {
				return nil, nil, fmt.Errorf("ragged array: element %d has shape %v, expected %v", i, subShape, shape)
			}
			leaves = append(leaves, subLeaves...)
		}
		return append([]int64{int64(len(arr))}, shape...), leaves, nil
	}

	for i, elem := range arr {
		if _, ok := elem.([]interface{}); ok {
			return nil, nil, fmt.Errorf("ragged array: element %d is a nested array, expected a leaf", i)
		}
	}
	return []int64{int64(len(arr))}, arr, nil
}

func shapeEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// decodeBase64Field implements the {"b64": ..., "type"?: ..., "shape"?: ...}
// form. Absent "type" means bytes; absent "shape" means 0-dim.
func decodeBase64Field(obj map[string]interface{}) (*pb.Tensor, error) {
	b64Str, ok := obj["b64"].(string)
	if !ok {
		return nil, fmt.Errorf("\"b64\" must be a string")
	}
	decoded, err := base64.StdEncoding.DecodeString(b64Str)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}

	dtype := pb.DT_BYTES
	if typeVal, ok := obj["type"]; ok {
		typeStr, ok := typeVal.(string)
		if !ok {
			return nil, fmt.Errorf("\"type\" must be a string")
		}
		dtype, err = parseDType(typeStr)
		if err != nil {
			return nil, err
		}
	}

	var shape []int64
	if shapeVal, ok := obj["shape"]; ok {
		shapeArr, ok := shapeVal.([]interface{})
		if !ok {
			return nil, fmt.Errorf("\"shape\" must be an array of integers")
		}
		shape = make([]int64, len(shapeArr))
		for i, d := range shapeArr {
			f, ok := d.(float64)
			if !ok {
				return nil, fmt.Errorf("\"shape\" elements must be integers")
			}
			shape[i] = int64(f)
		}
	}

	count := tensor.ElementCount(shape)
	if dtype.IsNumeric() {
		want := count * int64(dtype.ItemSize())
		if int64(len(decoded)) != want {
			return nil, fmt.Errorf("decoded_length %d does not equal element_count * itemsize(%s) = %d", len(decoded), dtype, want)
		}
		return &pb.Tensor{Dtype: dtype, Shape: shape, Data: decoded}, nil
	}

	if count != 1 {
		return nil, fmt.Errorf("byte/string base64 fields must have element_count 1, got %d", count)
	}
	return &pb.Tensor{Dtype: dtype, Shape: shape, BytesVal: [][]byte{decoded}}, nil
}

func parseDType(s string) (pb.DataType, error) {
	switch s {
	case "bytes":
		return pb.DT_BYTES, nil
	case "string":
		return pb.DT_STRING, nil
	case "bool":
		return pb.DT_BOOL, nil
	case "int8", "i8":
		return pb.DT_INT8, nil
	case "int16", "i16":
		return pb.DT_INT16, nil
	case "int32", "i32":
		return pb.DT_INT32, nil
	case "int64", "i64":
		return pb.DT_INT64, nil
	case "uint8", "u8":
		return pb.DT_UINT8, nil
	case "uint16", "u16":
		return pb.DT_UINT16, nil
	case "uint32", "u32":
		return pb.DT_UINT32, nil
	case "uint64", "u64":
		return pb.DT_UINT64, nil
	case "float16", "f16":
		return pb.DT_FLOAT16, nil
	case "float32", "f32":
		return pb.DT_FLOAT32, nil
	case "float64", "f64":
		return pb.DT_FLOAT64, nil
	default:
		return pb.DT_UNSPECIFIED, fmt.Errorf("unknown dtype %q", s)
	}
}

// encodeReply applies the inverse mapping for the HTTP reply.
func encodeReply(reply *pb.PredictReply) gin.H {
	out := gin.H{}
	if len(reply.Instances) > 0 {
		encoded := make([]gin.H, len(reply.Instances))
		for i, inst := range reply.Instances {
			encoded[i] = encodeInstance(inst)
		}
		out["instances"] = encoded
	}
	if len(reply.ErrorMsg) > 0 {
		if len(reply.ErrorMsg) == 1 {
			out["error_msg"] = reply.ErrorMsg[0].ErrorMsg
		} else {
			msgs := make([]string, len(reply.ErrorMsg))
			for i, e := range reply.ErrorMsg {
				msgs[i] = e.ErrorMsg
			}
			out["error_msg"] = msgs
		}
	}
	return out
}

func encodeInstance(inst *pb.Instance) gin.H {
	if inst == nil {
		return gin.H{}
	}
	fields := gin.H{}
	for name, t := range inst.Items {
		fields[name] = encodeTensor(t)
	}
	return fields
}

// encodeTensor always uses the {"b64": ...} form for replies, the simplest
// encoding that round-trips every dtype without re-inferring JS number
// literal shapes.
func encodeTensor(t *pb.Tensor) gin.H {
	if t == nil {
		return gin.H{}
	}
	if t.Dtype.IsNumeric() {
		return gin.H{"b64": base64.StdEncoding.EncodeToString(t.Data), "type": t.Dtype.String(), "shape": t.Shape}
	}
	payload := concatBytesVal(t.BytesVal)
	return gin.H{"b64": base64.StdEncoding.EncodeToString(payload), "type": t.Dtype.String(), "shape": t.Shape}
}

func concatBytesVal(vals [][]byte) []byte {
	total := 0
	for _, v := range vals {
		total += len(v)
	}
	out := make([]byte, 0, total)
	for _, v := range vals {
		out = append(out, v...)
	}
	return out
}
