// Package protocol defines the JSON-RPC 2.0 envelope used for every
// extension invocation, together with the error code taxonomy shared
// between host and guest.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC version string carried by every envelope.
const Version = "2.0"

// Standard extension method names.
const (
	MethodInfo         = "morphir.extension.info"
	MethodCapabilities = "morphir.extension.capabilities"
	MethodCompile      = "morphir.frontend.compile"
	MethodGenerate     = "morphir.backend.generate"
	MethodValidate     = "morphir.validator.validate"
	MethodTransform    = "morphir.transform.transform"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Server-defined error codes (-32000..-32099).
const (
	CodeExtensionError      = -32000
	CodeCompilationError    = -32001
	CodeGenerationError     = -32002
	CodeValidationError     = -32003
	CodeTransformationError = -32004
)

// Request is a JSON-RPC 2.0 request sent to an extension's handle export.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      uint64          `json:"id"`
}

// NewRequest builds a request envelope, serializing params to JSON.
func NewRequest(method string, params any, id uint64) (Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return Request{
		JSONRPC: Version,
		Method:  method,
		Params:  raw,
		ID:      id,
	}, nil
}

// Response is a JSON-RPC 2.0 response from an extension. Exactly one of
// Result and Error is present in a well-formed response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RpcError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

// IsSuccess reports whether the response carries a result and no error.
func (r *Response) IsSuccess() bool {
	return r.Error == nil && r.Result != nil
}

// IntoResult unmarshals the result into out, or surfaces the RPC error.
// A response carrying neither result nor error, or both, is invalid.
func (r *Response) IntoResult(out any) error {
	if r.Error != nil {
		if r.Result != nil {
			return &InvalidResponseError{Reason: "response carries both result and error"}
		}
		return r.Error
	}
	if r.Result == nil {
		return &InvalidResponseError{Reason: "empty response from extension"}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return &InvalidResponseError{Reason: fmt.Sprintf("undecodable result: %v", err)}
	}
	return nil
}

// SuccessResponse builds a result envelope for the given request id.
func SuccessResponse(id uint64, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("marshal result: %w", err)
	}
	return Response{JSONRPC: Version, Result: raw, ID: id}, nil
}

// ErrorResponse builds an error envelope for the given request id.
func ErrorResponse(id uint64, rpcErr RpcError) Response {
	return Response{JSONRPC: Version, Error: &rpcErr, ID: id}
}

// RpcError is the JSON-RPC 2.0 error object. It implements error so a
// decoded failure can travel through normal Go error handling.
type RpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// MethodNotFound builds the standard -32601 error for an unknown method.
func MethodNotFound(method string) RpcError {
	return RpcError{
		Code:    CodeMethodNotFound,
		Message: fmt.Sprintf("method not found: %s", method),
	}
}

// InternalError builds the standard -32603 error.
func InternalError(message string) RpcError {
	return RpcError{Code: CodeInternalError, Message: message}
}

// CodeForMethod returns the server-defined error code used when the given
// domain method fails. Methods outside the domain namespace map to the
// generic extension error.
func CodeForMethod(method string) int {
	switch method {
	case MethodCompile:
		return CodeCompilationError
	case MethodGenerate:
		return CodeGenerationError
	case MethodValidate:
		return CodeValidationError
	case MethodTransform:
		return CodeTransformationError
	default:
		return CodeExtensionError
	}
}

// InvalidResponseError indicates guest output that could not be decoded
// into a well-formed response.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid extension response: %s", e.Reason)
}
