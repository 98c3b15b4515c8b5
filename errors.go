package simnode

import (
	"errors"
)

// Runtime error kinds. Call sites wrap these with fmt.Errorf("...: %w", ...)
// so callers can classify failures with errors.Is while still receiving a
// descriptive message.
var (
	// State machine errors
	ErrInvalidState = errors.New("invalid state")

	// Parameter errors
	ErrInvalidArg        = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrPointer indicates an expired back-reference was addressed.
	ErrPointer = errors.New("expired reference")

	// Transport and I/O errors
	ErrBadDevice = errors.New("transport failure")
	ErrIOFailure = errors.New("i/o failure")
	ErrTimeout   = errors.New("timeout")

	// ErrCancelled indicates an operation was aborted by shutdown.
	ErrCancelled = errors.New("operation cancelled")

	ErrUnexpected  = errors.New("unexpected failure")
	ErrUnsupported = errors.New("unsupported operation")
)

// Result codes used by the RPC surface. Zero means success; failures map
// the error kinds above to stable negative codes.
const (
	ResultOK                = 0
	ResultInvalidState      = -10
	ResultInvalidArg        = -11
	ResultNotFound          = -12
	ResultAlreadyRegistered = -13
	ResultPointer           = -14
	ResultBadDevice         = -20
	ResultIOFailure         = -21
	ResultTimeout           = -22
	ResultCancelled         = -23
	ResultUnsupported       = -24
	ResultUnexpected        = -38
)

// ResultCode maps an error to its RPC result code.
func ResultCode(err error) int {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrInvalidState):
		return ResultInvalidState
	case errors.Is(err, ErrInvalidArg):
		return ResultInvalidArg
	case errors.Is(err, ErrNotFound):
		return ResultNotFound
	case errors.Is(err, ErrAlreadyRegistered):
		return ResultAlreadyRegistered
	case errors.Is(err, ErrPointer):
		return ResultPointer
	case errors.Is(err, ErrBadDevice):
		return ResultBadDevice
	case errors.Is(err, ErrIOFailure):
		return ResultIOFailure
	case errors.Is(err, ErrTimeout):
		return ResultTimeout
	case errors.Is(err, ErrCancelled):
		return ResultCancelled
	case errors.Is(err, ErrUnsupported):
		return ResultUnsupported
	default:
		return ResultUnexpected
	}
}
