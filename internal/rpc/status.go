package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"amanat.org/internal/escrow"
)

var sentinels = escrow.Sentinels()

// ToStatus converts an escrow error into a gRPC status. The status message
// is the sentinel's message so clients can map it back with FromStatus.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	sentinel := findSentinel(err)
	if sentinel == nil {
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(codeOf(sentinel), sentinel.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, escrow.ErrUnauthenticated):
		return codes.Unauthenticated
	case errors.Is(err, escrow.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, escrow.ErrDirectTransferRejected):
		return codes.Unimplemented
	}
	switch escrow.ClassOf(err) {
	case escrow.ClassExistence:
		return codes.AlreadyExists
	case escrow.ClassAuthorization:
		return codes.PermissionDenied
	case escrow.ClassTiming:
		return codes.FailedPrecondition
	case escrow.ClassValue:
		return codes.InvalidArgument
	default:
		return codes.Unknown
	}
}

func findSentinel(err error) error {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s
		}
	}
	return nil
}

// FromStatus maps a status produced by ToStatus back to the escrow
// sentinel. Other errors are returned unchanged.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if s, ok := sentinels[st.Message()]; ok && codeOf(s) == st.Code() {
		return s
	}
	return err
}
