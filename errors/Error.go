package errors

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
)

// Error is the node's typed error. It carries a taxonomy Code so callers
// can branch on failure class (RPC handlers map it to a grpc/codes.Code,
// the mempool/block applier map it to "reject" vs "retry" vs "fatal")
// without string-matching messages.
type Error struct {
	Code       Code
	Message    string
	WrappedErr error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.WrappedErr == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.WrappedErr)
}

// Is reports whether error codes match, looking through wrapped *Error
// chains so errors.Is(err, ErrNonexistentCoin) works on a wrapped error.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	var ue *Error
	if errors.As(target, &ue) && e.Code == ue.Code {
		return true
	}

	if unwrapped := errors.Unwrap(e); unwrapped != nil {
		if inner, ok := unwrapped.(*Error); ok {
			return inner.Is(target)
		}
	}

	return false
}

func (e *Error) As(target interface{}) bool {
	if e == nil {
		return false
	}

	if targetErr, ok := target.(**Error); ok {
		*targetErr = e
		return true
	}

	if e.WrappedErr != nil {
		return errors.As(e.WrappedErr, target)
	}

	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// New builds an Error of the given code. The last element of params may be
// an error (or *Error) to wrap; the remaining params format message as with
// fmt.Errorf.
func New(code Code, message string, params ...interface{}) *Error {
	var wrapped error

	if len(params) > 0 {
		if err, ok := params[len(params)-1].(error); ok {
			wrapped = err
			params = params[:len(params)-1]
		}
	}

	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	return &Error{Code: code, Message: message, WrappedErr: wrapped}
}

// ErrorCodeToGRPCCode maps the node's taxonomy onto a transport-level grpc
// status code for the light-client RPC surface.
func ErrorCodeToGRPCCode(code Code) codes.Code {
	switch code {
	case ErrNotFound, ErrNonexistentCoin:
		return codes.NotFound
	case ErrBadRequest, ErrInvalidArgument, ErrBadKind, ErrWrongNetwork, ErrWrongHeight:
		return codes.InvalidArgument
	case ErrTimedOut:
		return codes.DeadlineExceeded
	case ErrBadGateway, ErrPeerDisconnected:
		return codes.Unavailable
	case ErrUnknown:
		return codes.Unknown
	default:
		return codes.Internal
	}
}

// GRPCCodeToErrorCode is ErrorCodeToGRPCCode's inverse, used by rpc
// clients to recover a typed Code from a status a peer sent back. The
// mapping is lossy (several Codes share a grpc.Code) so this only ever
// recovers the coarse class, never the original Code exactly; callers
// that need the precise Code should inspect the status message.
func GRPCCodeToErrorCode(code codes.Code) Code {
	switch code {
	case codes.NotFound:
		return ErrNotFound
	case codes.InvalidArgument:
		return ErrBadRequest
	case codes.DeadlineExceeded:
		return ErrTimedOut
	case codes.Unavailable:
		return ErrBadGateway
	case codes.Unknown:
		return ErrUnknown
	default:
		return ErrInternal
	}
}

// Join concatenates non-nil error messages, matching the teacher's
// errors.Join helper (stdlib errors.Join exists in newer Go but this keeps
// a single flat message rather than a newline-joined tree).
func Join(errs ...error) error {
	var messages []string
	for _, err := range errs {
		if err != nil {
			messages = append(messages, err.Error())
		}
	}
	if len(messages) == 0 {
		return nil
	}
	//nolint:err113 // intentionally dynamic: aggregates caller-supplied errors
	return fmt.Errorf("%s", strings.Join(messages, ", "))
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// NewConfigurationError, NewInvalidArgumentError and NewServiceError are
// thin constructors for the ambient-infrastructure codes, used by packages
// (p2p, node, rpc) that need a typed error but aren't reporting a chain
// validation failure.
func NewConfigurationError(message string, params ...interface{}) *Error {
	return New(ErrConfiguration, message, params...)
}

func NewInvalidArgumentError(message string, params ...interface{}) *Error {
	return New(ErrInvalidArgument, message, params...)
}

func NewServiceError(message string, params ...interface{}) *Error {
	return New(ErrService, message, params...)
}

func NewProcessingError(message string, params ...interface{}) *Error {
	return New(ErrInternal, message, params...)
}

func NewStorageError(message string, params ...interface{}) *Error {
	return New(ErrCorrupt, message, params...)
}

func NewNotFoundError(message string, params ...interface{}) *Error {
	return New(ErrNotFound, message, params...)
}
