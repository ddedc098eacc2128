package tensor

import (
	"fmt"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
)

// CheckInstance validates one instance against a method's declared input
// names: every declared name must be present. Extra fields beyond the
// declared set are tolerated; only presence and shape are checked.
func CheckInstance(inst *pb.Instance, inputNames []string) error {
	if inst == nil {
		return fmt.Errorf("tensor: nil instance")
	}
	for i, name := range inputNames {
		t, ok := inst.Items[name]
		if !ok {
			return fmt.Errorf("given model input %s is not found in instance", name)
		}
		if err := Validate(t); err != nil {
			return fmt.Errorf("Given model input %d size: %w", i, err)
		}
	}
	return nil
}

// CheckRequestInstances validates every instance in a request against a
// method's declared input names, returning the index of the first failing
// instance and its error.
func CheckRequestInstances(instances []*pb.Instance, inputNames []string) (int, error) {
	for i, inst := range instances {
		if err := CheckInstance(inst, inputNames); err != nil {
			return i, err
		}
	}
	return -1, nil
}

// Clone returns a shallow copy of an instance's item map (new map, same
// *Tensor pointers — tensors are immutable after construction).
func Clone(inst *pb.Instance) *pb.Instance {
	if inst == nil {
		return nil
	}
	items := make(map[string]*pb.Tensor, len(inst.Items))
	for k, v := range inst.Items {
		items[k] = v
	}
	return &pb.Instance{Items: items}
}
