// Package validation checks incoming wire requests against structural
// bounds before they reach the dispatcher: a MultiError accumulator paired
// with per-field regex/length checks.
package validation

import (
	"fmt"
	"regexp"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
)

const (
	// MaxServableNameLength bounds a servable name's length.
	MaxServableNameLength = 128

	// MaxInstancesPerRequest bounds how many instances a single predict
	// request may carry, independent of the tensor package's own
	// per-instance structural checks.
	MaxInstancesPerRequest = 4096

	// MaxWorkerAddressLength bounds a worker's advertised address.
	MaxWorkerAddressLength = 256
)

var servableNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Error represents one field-level validation failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiError collects validation failures across an entire request.
type MultiError struct {
	Errors []*Error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", m.Errors[0].Error(), len(m.Errors)-1)
}

func (m *MultiError) Add(field, message string) {
	m.Errors = append(m.Errors, &Error{Field: field, Message: message})
}

func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// ValidatePredictRequest checks a client-facing predict request's shape,
// ahead of tensor.CheckRequestInstances's per-instance structural checks.
func ValidatePredictRequest(req *pb.PredictRequest) error {
	errs := &MultiError{}

	if req.Spec == nil {
		errs.Add("spec", "required")
	} else {
		if req.Spec.Name == "" {
			errs.Add("spec.name", "required")
		} else if len(req.Spec.Name) > MaxServableNameLength {
			errs.Add("spec.name", fmt.Sprintf("must be <= %d characters", MaxServableNameLength))
		} else if !servableNameRegex.MatchString(req.Spec.Name) {
			errs.Add("spec.name", "must contain only alphanumeric, dash, or underscore")
		}
		if req.Spec.MethodName == "" {
			errs.Add("spec.method_name", "required")
		}
	}

	if len(req.Instances) == 0 {
		errs.Add("instances", "required")
	} else if len(req.Instances) > MaxInstancesPerRequest {
		errs.Add("instances", fmt.Sprintf("must have <= %d instances", MaxInstancesPerRequest))
	}

	return errs.ToError()
}

// ValidateWorkerRegSpec checks a worker's self-reported registration spec
// before it reaches the registry.
func ValidateWorkerRegSpec(spec *pb.WorkerRegSpec) error {
	errs := &MultiError{}

	if spec.WorkerAddress == "" {
		errs.Add("worker_address", "required")
	} else if len(spec.WorkerAddress) > MaxWorkerAddressLength {
		errs.Add("worker_address", fmt.Sprintf("must be <= %d characters", MaxWorkerAddressLength))
	}

	if spec.WorkerPid == 0 {
		errs.Add("worker_pid", "required")
	}

	if spec.ServableName == "" {
		errs.Add("servable_name", "required")
	} else if len(spec.ServableName) > MaxServableNameLength {
		errs.Add("servable_name", fmt.Sprintf("must be <= %d characters", MaxServableNameLength))
	} else if !servableNameRegex.MatchString(spec.ServableName) {
		errs.Add("servable_name", "must contain only alphanumeric, dash, or underscore")
	}

	if len(spec.Methods) == 0 {
		errs.Add("methods", "required")
	}

	return errs.ToError()
}
