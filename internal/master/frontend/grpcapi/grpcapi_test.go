package grpcapi

import (
	"context"
	"testing"
	"time"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/master/facade"
	"github.com/predictgrid/predictgrid/internal/master/registry"
	pgtls "github.com/predictgrid/predictgrid/internal/security/tls"
)

func newTestDispatcher() *facade.Dispatcher {
	return facade.New(facade.Config{
		Registry:   registry.New(registry.Config{}),
		Round:      3,
		CircuitOff: true,
	})
}

func TestPredictServer_Predict_RejectsInvalidSpec(t *testing.T) {
	s := NewPredictServer(newTestDispatcher(), time.Second)

	reply, err := s.Predict(context.Background(), &pb.PredictRequest{})
	if err != nil {
		t.Fatalf("expected reply-carried error, got transport error %v", err)
	}
	if len(reply.ErrorMsg) == 0 {
		t.Fatal("expected an error message for a request with no spec or instances")
	}
}

func TestMasterServer_Register_RejectsInvalidSpec(t *testing.T) {
	s := NewMasterServer(newTestDispatcher(), "", pgtls.Config{})

	reply, err := s.Register(context.Background(), &pb.RegisterRequest{
		Spec: &pb.WorkerRegSpec{}, // missing address, pid, servable name, methods
	})
	if err != nil {
		t.Fatalf("expected rejection via reply, got transport error %v", err)
	}
	if reply.Accepted {
		t.Fatal("expected registration to be rejected for an invalid spec")
	}
}

func TestMasterServer_Register_MissingSpec(t *testing.T) {
	s := NewMasterServer(newTestDispatcher(), "", pgtls.Config{})

	_, err := s.Register(context.Background(), &pb.RegisterRequest{})
	if err == nil {
		t.Fatal("expected error for missing spec")
	}
}
