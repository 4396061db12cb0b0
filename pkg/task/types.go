package task

import "errors"

// Sentinel Errors returned by the task package.
var (
	ErrHandleNotFound = errors.New("handle not found")
	ErrIntegrity      = errors.New("task set integrity error")
	ErrTaskNotFound   = errors.New("task not found")
	ErrHandleConflict = errors.New("handle conflict")
	ErrAlreadyDone    = errors.New("task already done")
)

// Type selects how a job server queues a task.
type Type int

// Task types. Background tasks are fire-and-forget: the client stops
// tracking them once the server has assigned a handle.
const (
	Normal Type = iota
	High
	Low
	Background
)

// String returns the lower case name of the task type.
func (t Type) String() string {
	switch t {
	case Normal:
		return "normal"
	case High:
		return "high"
	case Low:
		return "low"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// State is the client side view of a task's progress.
type State int

// Task states.
const (
	Pending State = iota
	Submitted
	Complete
	Failed
)

// String returns the lower case name of the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Submitted:
		return "submitted"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event identifies the task transition a callback is attached to.
type Event int

// Callback events.
const (
	EventStatus Event = iota
	EventData
	EventComplete
	EventFail
)

// CallbackFunc is called with the task that triggered the event.
type CallbackFunc func(t *Task)
