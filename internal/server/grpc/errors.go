package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/whisperchain/whisperchain/internal/errs"
)

var kindCodes = []struct {
	kind error
	code codes.Code
}{
	{errs.ErrValidation, codes.InvalidArgument},
	{errs.ErrUnauthorized, codes.Unauthenticated},
	{errs.ErrForbidden, codes.PermissionDenied},
	{errs.ErrNotFound, codes.NotFound},
	{errs.ErrConflict, codes.FailedPrecondition},
	{errs.ErrRateLimited, codes.ResourceExhausted},
	{errs.ErrCrypto, codes.Internal},
	{errs.ErrConfiguration, codes.Unavailable},
}

// toStatus translates a domain error into a gRPC status. The domain message is
// kept; anything unclassified becomes Internal "internal".
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	}
	for _, kc := range kindCodes {
		if errors.Is(err, kc.kind) {
			return status.Error(kc.code, errs.Message(err))
		}
	}
	return status.Error(codes.Internal, "internal")
}
