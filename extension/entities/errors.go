package entities

import (
	"errors"
	"fmt"
)

// Sentinel errors for the extension subsystem. Typed errors below carry
// detail and match these via Is, so callers can branch with errors.Is and
// still recover specifics with errors.As.
var (
	// ErrNotFound is returned when an id has no registered configuration
	// or no loaded container.
	ErrNotFound = errors.New("extension not found")

	// ErrDisabled is returned when a registered extension is disabled by
	// configuration. Deliberately distinct from ErrNotFound.
	ErrDisabled = errors.New("extension disabled")

	// ErrLoadFailed covers module byte fetching and instantiation failures.
	ErrLoadFailed = errors.New("extension load failed")

	// ErrInitFailed is returned when a freshly instantiated extension
	// cannot answer the metadata query with valid info.
	ErrInitFailed = errors.New("extension init failed")

	// ErrUnsupportedCapability is returned when a caller requests a
	// capability the extension does not advertise.
	ErrUnsupportedCapability = errors.New("unsupported capability")

	// ErrExecutionFailed covers runtime failures surfaced by a call.
	ErrExecutionFailed = errors.New("extension execution failed")

	// ErrInvalidResponse is returned for undecodable guest output.
	ErrInvalidResponse = errors.New("invalid extension response")

	// ErrCallTimeout is returned when a call exceeds the extension's
	// configured time or fuel budget and was aborted.
	ErrCallTimeout = errors.New("extension call exceeded resource budget")
)

// NotFoundError identifies the missing extension.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("extension not found: %s", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DisabledError identifies an extension rejected because its configuration
// disables it.
type DisabledError struct {
	ID string
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("extension disabled: %s", e.ID)
}

func (e *DisabledError) Is(target error) bool { return target == ErrDisabled }

// LoadError wraps a fetch or instantiation failure for one extension.
type LoadError struct {
	ID  string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load extension %s: %v", e.ID, e.Err)
}

func (e *LoadError) Is(target error) bool { return target == ErrLoadFailed }

func (e *LoadError) Unwrap() error { return e.Err }

// InitError wraps a metadata-query failure at load time.
type InitError struct {
	ID  string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init extension %s: %v", e.ID, e.Err)
}

func (e *InitError) Is(target error) bool { return target == ErrInitFailed }

func (e *InitError) Unwrap() error { return e.Err }

// UnsupportedCapabilityError names the extension and the capability the
// caller asked for.
type UnsupportedCapabilityError struct {
	Extension  string
	Capability ExtensionType
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("extension %s does not support %s", e.Extension, e.Capability)
}

func (e *UnsupportedCapabilityError) Is(target error) bool {
	return target == ErrUnsupportedCapability
}

// ExecutionError wraps a failure raised while a call was executing,
// including RPC error objects decoded from the guest.
type ExecutionError struct {
	Extension string
	Method    string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("extension %s: %s failed: %v", e.Extension, e.Method, e.Err)
}

func (e *ExecutionError) Is(target error) bool { return target == ErrExecutionFailed }

func (e *ExecutionError) Unwrap() error { return e.Err }

// TimeoutError reports a call aborted for exceeding its resource budget.
type TimeoutError struct {
	Extension string
	Method    string
	BudgetMS  uint64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("extension %s: %s aborted after %dms budget", e.Extension, e.Method, e.BudgetMS)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrCallTimeout }

// DigestMismatchError reports module bytes whose sha256 digest does not
// match the configuration pin.
type DigestMismatchError struct {
	ID       string
	Expected string
	Actual   string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("extension %s: digest mismatch: expected %s, got %s", e.ID, e.Expected, e.Actual)
}

func (e *DigestMismatchError) Is(target error) bool { return target == ErrLoadFailed }
