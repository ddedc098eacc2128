package servingerr

import pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"

// ToErrorMsg converts a Status into the wire ErrorMsg type.
func ToErrorMsg(s *Status) *pb.ErrorMsg {
	if s == nil {
		return &pb.ErrorMsg{ErrorCode: 0}
	}
	return &pb.ErrorMsg{ErrorCode: s.Kind.Code(), ErrorMsg: s.Msg}
}

// FromErrorMsg converts a wire ErrorMsg back into a Status, used when the
// master must reason about errors a worker reported.
func FromErrorMsg(e *pb.ErrorMsg) *Status {
	if e == nil || e.ErrorCode == 0 {
		return nil
	}
	kind := KindFailed
	switch e.ErrorCode {
	case pb.WorkerUnavailable:
		kind = KindWorkerUnavailable
	case KindInvalidInputs.Code():
		kind = KindInvalidInputs
	case KindSystemError.Code():
		kind = KindSystemError
	}
	return &Status{Kind: kind, Msg: e.ErrorMsg}
}
