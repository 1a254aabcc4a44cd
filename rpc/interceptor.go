package rpc

import (
	"context"
	stderrors "errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/themelio-labs/themelio-core/errors"
)

// ErrorInterceptor converts a handler's *errors.Error into a grpc status
// carrying the equivalent codes.Code (errors.ErrorCodeToGRPCCode), the
// NotFound/BadRequest/BadGateway/Internal taxonomy spec §4.J calls for on
// the light-client RPC surface. A plain, untyped error still reaches the
// caller, just without a typed code to recover client-side.
func ErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}

		var nodeErr *errors.Error
		if stderrors.As(err, &nodeErr) {
			return nil, status.Error(errors.ErrorCodeToGRPCCode(nodeErr.Code), nodeErr.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
}

// FromGRPCError recovers a typed *errors.Error from an error returned by
// an Invoke call, using GRPCCodeToErrorCode's coarse reverse mapping when
// the failure crossed the wire (it can never recover the exact original
// Code, only its class).
func FromGRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	return errors.New(errors.GRPCCodeToErrorCode(st.Code()), st.Message())
}
