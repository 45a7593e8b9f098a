package rhea

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes runtime failures. Task-level and group-level kinds
// mirror the terminal outcomes reported by WaitFor; the remaining kinds cover
// buffer, allocator and argument validation failures.
type ErrorKind int

const (
	// KindTaskGPUFailure indicates a GPU-bound task failed inside its executor.
	KindTaskGPUFailure ErrorKind = iota
	// KindTaskDSPFailure indicates a DSP-bound task failed inside its executor.
	KindTaskDSPFailure
	// KindTaskCanceled indicates a task was canceled before or during execution.
	KindTaskCanceled
	// KindTaskAggregate indicates a task failed because several of its
	// predecessors failed with distinct kinds.
	KindTaskAggregate
	// KindTaskGeneric indicates a task failed for an unclassified reason.
	KindTaskGeneric
	// KindGroupCanceled indicates a group was canceled.
	KindGroupCanceled
	// KindGroupAggregate indicates a group collected more than one error kind.
	KindGroupAggregate
	// KindGroupGeneric indicates a group collected an unclassified error.
	KindGroupGeneric
	// KindAllocation indicates pool or region exhaustion.
	KindAllocation
	// KindInvalidArg indicates a rejected argument, such as conflicting
	// task attributes or an incompatible acquire mode.
	KindInvalidArg
	// KindOutOfBounds indicates a range or index outside its valid span.
	KindOutOfBounds
	// KindDeviceNotAvailable indicates no executor is registered for the
	// requested device class.
	KindDeviceNotAvailable
)

// String returns the error kind as a string.
func (k ErrorKind) String() string {
	switch k {
	case KindTaskGPUFailure:
		return "TaskGpuFailure"
	case KindTaskDSPFailure:
		return "TaskDspFailure"
	case KindTaskCanceled:
		return "TaskCanceled"
	case KindTaskAggregate:
		return "TaskAggregateFailure"
	case KindTaskGeneric:
		return "TaskGenericError"
	case KindGroupCanceled:
		return "GroupCanceled"
	case KindGroupAggregate:
		return "GroupAggregateFailure"
	case KindGroupGeneric:
		return "GroupGenericError"
	case KindAllocation:
		return "AllocationFailure"
	case KindInvalidArg:
		return "InvalidArgument"
	case KindOutOfBounds:
		return "OutOfBounds"
	case KindDeviceNotAvailable:
		return "DeviceNotAvailable"
	default:
		return "Unknown"
	}
}

// Error is a structured runtime error with operation context.
type Error struct {
	Kind    ErrorKind
	Op      string // Operation that failed
	Message string // Human-readable message
	Err     error  // Underlying error if any
	Context any    // Additional context
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rhea %s error in %s: %s (caused by: %v)",
			e.Kind, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("rhea %s error in %s: %s", e.Kind, e.Op, e.Message)
}

// Unwrap allows error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so sentinel values compare with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// AggregateError is the outcome reported by a group whose tasks failed with
// one or more kinds. First carries the first error observed; Counts holds the
// number of failures per kind.
type AggregateError struct {
	Op     string
	First  error
	Counts map[ErrorKind]int
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	total := 0
	for _, n := range e.Counts {
		total += n
	}
	return fmt.Sprintf("rhea aggregate error in %s: %d failure(s), first: %v",
		e.Op, total, e.First)
}

// Unwrap exposes the first collected error.
func (e *AggregateError) Unwrap() error {
	return e.First
}

// Kind returns the dominant kind of the aggregate: the single collected kind
// if uniform, or the group aggregate kind otherwise.
func (e *AggregateError) Kind() ErrorKind {
	if len(e.Counts) == 1 {
		for k := range e.Counts {
			return k
		}
	}
	return KindGroupAggregate
}

// Common error constructors.

func newTaskError(kind ErrorKind, op, message string, err error) error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// NewInvalidArgError creates an invalid argument error.
func NewInvalidArgError(op, message string) error {
	return &Error{Kind: KindInvalidArg, Op: op, Message: message}
}

// NewOutOfBoundsError creates a range or index error.
func NewOutOfBoundsError(op string, index, limit int) error {
	return &Error{
		Kind:    KindOutOfBounds,
		Op:      op,
		Message: fmt.Sprintf("index %d outside [0, %d)", index, limit),
	}
}

// NewAllocationError creates a pool or region exhaustion error.
func NewAllocationError(op, message string, err error) error {
	return &Error{Kind: KindAllocation, Op: op, Message: message, Err: err}
}

// Common pre-defined errors.

var (
	// ErrTaskCanceled reports a task that terminated without running its body.
	ErrTaskCanceled = newTaskError(KindTaskCanceled, "WaitFor", "task canceled", nil)

	// ErrGroupCanceled reports a group canceled before its tasks completed.
	ErrGroupCanceled = newTaskError(KindGroupCanceled, "WaitFor", "group canceled", nil)

	// ErrDeviceNotAvailable reports a device class with no registered executor.
	ErrDeviceNotAvailable = newTaskError(KindDeviceNotAvailable, "Acquire", "no executor registered for device", nil)

	// ErrPoolExhausted reports a fixed-capacity pool with no free entries.
	ErrPoolExhausted = NewAllocationError("Alloc", "pool exhausted", nil)

	// ErrInvalidMode reports an acquire with an unknown access mode.
	ErrInvalidMode = NewInvalidArgError("Acquire", "invalid access mode")

	// ErrConflictingAttrs reports a task created with contradictory attributes.
	ErrConflictingAttrs = NewInvalidArgError("CreateTask", "conflicting task attributes")

	// ErrNotRunning reports an operation against a runtime that is not initialized.
	ErrNotRunning = newTaskError(KindTaskGeneric, "Runtime", "runtime not initialized", nil)

	// ErrTimeout reports a timed wait that expired before the target settled.
	ErrTimeout = newTaskError(KindTaskGeneric, "WaitFor", "wait timed out", nil)
)

// IsCanceled checks whether an error reports task or group cancellation.
func IsCanceled(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTaskCanceled || e.Kind == KindGroupCanceled
	}
	return false
}

// IsDeviceNotAvailable checks whether an error reports a missing executor.
func IsDeviceNotAvailable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindDeviceNotAvailable
	}
	return false
}

// IsAllocationError checks whether an error reports allocator exhaustion.
func IsAllocationError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindAllocation
	}
	return false
}

// IsInvalidArgError checks whether an error reports a rejected argument.
func IsInvalidArgError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindInvalidArg
	}
	return false
}
