package internal

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoActiveSession = errors.New("no active session")
	ErrNotInitialized  = errors.New("memory root not initialized")
	ErrNowNotFound     = errors.New("NOW file not found")
	ErrInvalidKind     = errors.New("invalid entry kind")
)

// LockBusyError is returned when the advisory lock could not be acquired
// within the configured retry budget. Callers may retry the whole operation.
type LockBusyError struct {
	Path     string
	Attempts int
}

func (e *LockBusyError) Error() string {
	return fmt.Sprintf("lock %s still held after %d attempts", e.Path, e.Attempts)
}

// Retryable reports whether err is worth retrying at a higher level.
func Retryable(err error) bool {
	var busy *LockBusyError
	return errors.As(err, &busy)
}

// ServiceError wraps a failure of the external summarization service.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// TimeoutError is the typed form of a summarization call exceeding its
// deadline. It is the only cancellable operation in the system.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Elapsed)
}

// SummaryFormatError signals that the model returned something other than the
// required JSON object. It is never downgraded to a partial summary: an
// accepted bad summary would corrupt long-term memory.
type SummaryFormatError struct {
	Detail string
	Raw    string
}

func (e *SummaryFormatError) Error() string {
	return fmt.Sprintf("malformed summary: %s", e.Detail)
}

// ValidationIssue is one integrity finding, reported per file and line.
type ValidationIssue struct {
	File   string
	Line   int
	Detail string
}

func (i ValidationIssue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", i.File, i.Line, i.Detail)
	}
	return fmt.Sprintf("%s: %s", i.File, i.Detail)
}

// IntegrityError aggregates validation issues. Validation never auto-repairs.
type IntegrityError struct {
	Issues []ValidationIssue
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%d integrity issue(s)", len(e.Issues))
}
