package protocol

import (
	"errors"

	"github.com/morphir-dev/exthost/extension/entities"
)

// ErrorFor maps an internal failure onto the wire error taxonomy so the
// failure stays meaningful to a cross-process caller. The mapping is 1:1
// with the entities sentinels; unrecognized errors become internal errors.
func ErrorFor(err error, method string) RpcError {
	switch {
	case err == nil:
		return RpcError{}
	case errors.Is(err, entities.ErrNotFound):
		return RpcError{Code: CodeMethodNotFound, Message: err.Error()}
	case errors.Is(err, entities.ErrInvalidResponse):
		return RpcError{Code: CodeParseError, Message: err.Error()}
	case errors.Is(err, entities.ErrUnsupportedCapability):
		return RpcError{Code: CodeInvalidRequest, Message: err.Error()}
	case errors.Is(err, entities.ErrCallTimeout),
		errors.Is(err, entities.ErrExecutionFailed):
		return RpcError{Code: CodeForMethod(method), Message: err.Error()}
	case errors.Is(err, entities.ErrLoadFailed),
		errors.Is(err, entities.ErrInitFailed),
		errors.Is(err, entities.ErrDisabled):
		return RpcError{Code: CodeExtensionError, Message: err.Error()}
	default:
		return InternalError(err.Error())
	}
}
