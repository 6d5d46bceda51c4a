package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/correlate/internal/types"
)

// toStatus maps service errors to gRPC status codes.
// Unknown rules map to NOT_FOUND and other unresolved references (host
// groups) to PERMISSION_DENIED. Storage errors map to UNAVAILABLE. Every
// other classified error is the caller's fault and maps to INVALID_ARGUMENT.
// Context timeouts map to DEADLINE_EXCEEDED.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, types.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, types.ErrReference):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, types.ErrStorage):
		return status.Error(codes.Unavailable, err.Error())
	case types.KindOf(err) != 0:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
