package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/master/facade"
	"github.com/predictgrid/predictgrid/internal/master/registry"
	"github.com/predictgrid/predictgrid/internal/tensor"
)

type echoRPC struct{}

func (echoRPC) Predict(_ context.Context, in *pb.PredictRequest) (*pb.PredictReply, error) {
	return &pb.PredictReply{Instances: in.Instances}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.New(registry.Config{})
	d := facade.New(facade.Config{Registry: reg, Round: 3, AdmissionCap: 100})

	spec := pb.WorkerRegSpec{
		WorkerAddress: "localhost:0",
		WorkerPid:     1,
		ServableName:  "add_common",
		BatchSize:     1,
		Methods:       []*pb.MethodInfo{{Name: "add", InputNames: []string{"x", "y"}}},
	}
	if err := d.RegisterWorker(spec, ""); err != nil {
		t.Fatalf("RegisterWorker failed: %v", err)
	}
	d.ConnectWorker(1, echoRPC{})

	return New(d, time.Second)
}

func TestParseRoute(t *testing.T) {
	rt, err := parseRoute("/add_common:add")
	if err != nil || rt.servable != "add_common" || rt.method != "add" || rt.version != 0 {
		t.Fatalf("unexpected parse: %+v err=%v", rt, err)
	}

	rt, err = parseRoute("/add_common/version/2:add")
	if err != nil || rt.servable != "add_common" || rt.method != "add" || rt.version != 2 {
		t.Fatalf("unexpected parse: %+v err=%v", rt, err)
	}
}

func TestHandlePredict_ScalarInstance(t *testing.T) {
	s := newTestServer(t)

	body := `{"instances":{"x":1.1,"y":2.2}}`
	req := httptest.NewRequest("POST", "/model/add_common:add", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if _, ok := resp["instances"]; !ok {
		t.Errorf("expected instances in response, got %s", rec.Body.String())
	}
}

func TestDecodeBase64Field_Int16Matrix(t *testing.T) {
	field := map[string]interface{}{
		"b64":   "AQACAAIAAwADAAQA",
		"type":  "int16",
		"shape": []interface{}{float64(3), float64(2)},
	}
	tsr, err := decodeBase64Field(field)
	if err != nil {
		t.Fatalf("decodeBase64Field failed: %v", err)
	}
	if tsr.Dtype != pb.DT_INT16 {
		t.Fatalf("expected int16 dtype, got %v", tsr.Dtype)
	}
	values, err := tensor.UnpackInt16(tsr.Data)
	if err != nil {
		t.Fatalf("UnpackInt16 failed: %v", err)
	}
	want := []int16{1, 2, 2, 3, 3, 4}
	for i, v := range want {
		if values[i] != v {
			t.Errorf("value %d: expected %d, got %d", i, v, values[i])
		}
	}
}

func TestDecodeArrayField_RejectsRagged(t *testing.T) {
	arr := []interface{}{
		[]interface{}{float64(1), float64(2)},
		[]interface{}{float64(3)},
	}
	if _, err := decodeArrayField(arr); err == nil {
		t.Fatal("expected an error for a ragged array")
	}
}

func TestDecodeArrayField_NestedFloat(t *testing.T) {
	arr := []interface{}{
		[]interface{}{float64(1.1), float64(2.2)},
		[]interface{}{float64(3.3), float64(4.4)},
	}
	tsr, err := decodeArrayField(arr)
	if err != nil {
		t.Fatalf("decodeArrayField failed: %v", err)
	}
	if len(tsr.Shape) != 2 || tsr.Shape[0] != 2 || tsr.Shape[1] != 2 {
		t.Errorf("expected shape [2 2], got %v", tsr.Shape)
	}
}
