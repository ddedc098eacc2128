// Package predictgridv1 holds the wire message types for the predictgrid
// master/worker protocol described in proto/predictgrid/v1/predictgrid.proto.
//
// Unlike most protoc-gen-go output these are plain structs carrying `json`
// tags instead of generated protobuf reflection code: the gRPC services in
// this package are served over the JSON codec registered in
// internal/rpccodec, not the protobuf wire format. See that package's doc
// comment for why.
package predictgridv1

// DataType is the closed set of tensor element types.
type DataType int32

const (
	DT_UNSPECIFIED DataType = 0
	DT_BOOL        DataType = 1
	DT_INT8        DataType = 2
	DT_INT16       DataType = 3
	DT_INT32       DataType = 4
	DT_INT64       DataType = 5
	DT_UINT8       DataType = 6
	DT_UINT16      DataType = 7
	DT_UINT32      DataType = 8
	DT_UINT64      DataType = 9
	DT_FLOAT16     DataType = 10
	DT_FLOAT32     DataType = 11
	DT_FLOAT64     DataType = 12
	DT_BYTES       DataType = 13
	DT_STRING      DataType = 14
)

var dataTypeNames = map[DataType]string{
	DT_UNSPECIFIED: "DT_UNSPECIFIED",
	DT_BOOL:        "DT_BOOL",
	DT_INT8:        "DT_INT8",
	DT_INT16:       "DT_INT16",
	DT_INT32:       "DT_INT32",
	DT_INT64:       "DT_INT64",
	DT_UINT8:       "DT_UINT8",
	DT_UINT16:      "DT_UINT16",
	DT_UINT32:      "DT_UINT32",
	DT_UINT64:      "DT_UINT64",
	DT_FLOAT16:     "DT_FLOAT16",
	DT_FLOAT32:     "DT_FLOAT32",
	DT_FLOAT64:     "DT_FLOAT64",
	DT_BYTES:       "DT_BYTES",
	DT_STRING:      "DT_STRING",
}

func (d DataType) String() string {
	if s, ok := dataTypeNames[d]; ok {
		return s
	}
	return "DT_UNSPECIFIED"
}

// ItemSize returns the packed byte width of one element for numeric dtypes,
// and 0 for BYTES/STRING (those are counted by element, not by byte width).
func (d DataType) ItemSize() int {
	switch d {
	case DT_BOOL, DT_INT8, DT_UINT8:
		return 1
	case DT_INT16, DT_UINT16, DT_FLOAT16:
		return 2
	case DT_INT32, DT_UINT32, DT_FLOAT32:
		return 4
	case DT_INT64, DT_UINT64, DT_FLOAT64:
		return 8
	default:
		return 0
	}
}

// IsNumeric reports whether the dtype is packed into Tensor.data rather
// than Tensor.bytes_val.
func (d DataType) IsNumeric() bool {
	return d != DT_BYTES && d != DT_STRING && d != DT_UNSPECIFIED
}

// Tensor is the wire representation of one named input/output value.
type Tensor struct {
	Dtype    DataType `json:"dtype"`
	Shape    []int64  `json:"shape,omitempty"`
	Data     []byte   `json:"data,omitempty"`
	BytesVal [][]byte `json:"bytes_val,omitempty"`
}

// Instance is an unordered mapping from input name to Tensor.
type Instance struct {
	Items map[string]*Tensor `json:"items,omitempty"`
}

// ErrorMsg is a per-instance or request-wide error.
type ErrorMsg struct {
	ErrorCode int32  `json:"error_code"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// ServableSpec identifies a servable/version/method triple.
type ServableSpec struct {
	Name          string `json:"name"`
	VersionNumber uint64 `json:"version_number"`
	MethodName    string `json:"method_name,omitempty"`
}

// PredictRequest is the client/worker request envelope.
type PredictRequest struct {
	Spec      *ServableSpec `json:"spec"`
	Instances []*Instance   `json:"instances,omitempty"`
}

// PredictReply is the client/worker reply envelope.
type PredictReply struct {
	Spec      *ServableSpec `json:"spec,omitempty"`
	Instances []*Instance   `json:"instances,omitempty"`
	ErrorMsg  []*ErrorMsg   `json:"error_msg,omitempty"`
}

// MethodInfo describes one method a servable exposes.
type MethodInfo struct {
	Name       string   `json:"name"`
	InputNames []string `json:"input_names,omitempty"`
}

// WorkerRegSpec is what a worker announces on Register.
type WorkerRegSpec struct {
	WorkerAddress string        `json:"worker_address"`
	WorkerPid     uint64        `json:"worker_pid"`
	ServableName  string        `json:"servable_name"`
	VersionNumber uint64        `json:"version_number"`
	BatchSize     uint64        `json:"batch_size"`
	Methods       []*MethodInfo `json:"methods,omitempty"`
	OwnDevice     bool          `json:"own_device"`
}

type RegisterRequest struct {
	Spec      *WorkerRegSpec `json:"spec"`
	AuthToken string         `json:"auth_token,omitempty"`
}

type RegisterReply struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

type ExitRequest struct {
	WorkerPid uint64 `json:"worker_pid"`
}

type ExitReply struct{}

type NotifyFailedRequest struct {
	WorkerPid uint64 `json:"worker_pid"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

type NotifyFailedReply struct{}

type GetModelInfoRequest struct {
	ServableName  string `json:"servable_name"`
	VersionNumber uint64 `json:"version_number"`
}

type ServableMethodDescription struct {
	Name       string   `json:"name"`
	InputNames []string `json:"input_names,omitempty"`
	BatchSize  uint64   `json:"batch_size"`
}

type GetModelInfoReply struct {
	ServableName  string                        `json:"servable_name"`
	VersionNumber uint64                        `json:"version_number"`
	Methods       []*ServableMethodDescription  `json:"methods,omitempty"`
}

type PingRequest struct {
	FromAddress  string `json:"from_address"`
	SentUnixNano int64  `json:"sent_unix_nano"`
}

type PongRequest struct {
	EchoUnixNano int64 `json:"echo_unix_nano"`
}

type CallModelRequest struct {
	ServableName  string      `json:"servable_name"`
	VersionNumber uint64      `json:"version_number"`
	MethodName    string      `json:"method_name"`
	Instances     []*Instance `json:"instances,omitempty"`
}

type CallModelReply struct {
	Instances []*Instance `json:"instances,omitempty"`
	ErrorMsg  []*ErrorMsg `json:"error_msg,omitempty"`
}

// WorkerUnavailable is the distinguished error code that tells the master
// to re-route a task to another worker rather than surface the failure to
// the caller.
const WorkerUnavailable int32 = -1
