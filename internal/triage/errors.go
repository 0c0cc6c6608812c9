package triage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
)

var (
	ErrNotAuthenticated  = errors.New("authentication required")
	ErrForbidden         = errors.New("municipality role required")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrReportNotFound    = errors.New("report not found")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// TransitionError names the rejected edge; it matches ErrInvalidTransition.
type TransitionError struct {
	From models.ReportStatus
	To   models.ReportStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move report from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StorageError wraps a persistence failure. Transient failures may succeed
// on retry; permanent ones will not.
type StorageError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StorageError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("storage %s (%s): %v", e.Op, kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError classifies err. Deadline, broken-connection and network
// timeout errors are transient.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Transient: isTransient(err), Err: err}
}

func IsTransient(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Transient
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ChannelError is a live-update publish or subscribe failure. It never fails
// the write that triggered it.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return "live channel " + e.Op + ": " + e.Err.Error()
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
