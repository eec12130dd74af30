// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/jittakal/kafblockstore/pkg/block"
)

// Sentinel errors for common conditions.
var (
	ErrGeneratorNotStarted = errors.New("block generator is not started")
	ErrGeneratorStopped    = errors.New("block generator is stopped")
	ErrSourceClosed        = errors.New("record source is closed")
	ErrBlockNotFound       = errors.New("block not found")
	ErrHandlerClosed       = errors.New("storage handler is closed")
	ErrConnectionLost      = errors.New("connection lost")
)

// TickError represents a failure while finalizing a buffer into blocks.
// The remainder of the tick is abandoned when it occurs.
type TickError struct {
	BlockID block.ID
	Err     error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick error: block=%s: %v", e.BlockID, e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}

// PushError represents a delivery failure on the drain path.
type PushError struct {
	BlockID block.ID
	Err     error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push error: block=%s: %v", e.BlockID, e.Err)
}

func (e *PushError) Unwrap() error {
	return e.Err
}

// StorageError represents a storage handler operation failure.
type StorageError struct {
	Operation string
	Key       string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s key=%s: %v",
		e.Operation, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CoordinatorError represents a failed coordinator request.
type CoordinatorError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *CoordinatorError) Error() string {
	return fmt.Sprintf("coordinator error: endpoint=%s status=%d: %v",
		e.Endpoint, e.StatusCode, e.Err)
}

func (e *CoordinatorError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking specific error types and sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	// Write-side operations are generally retryable; lookups are not.
	return e.Operation == "store" || e.Operation == "upload" || e.Operation == "reallocate"
}

// IsRetryable determines if a CoordinatorError is retryable.
func (e *CoordinatorError) IsRetryable() bool {
	// 5xx responses and transport failures may succeed on a later attempt.
	return e.StatusCode == 0 || e.StatusCode >= 500
}
