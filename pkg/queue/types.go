package queue

import (
	"errors"
	"time"
)

// Sentinel Errors returned by the queue package.
var (
	ErrFunction    = errors.New("invalid function")
	ErrJobNotFound = errors.New("job not found")
	ErrNotRunning  = errors.New("job not running")
	ErrFinished    = errors.New("job already finished")
	ErrShutdown    = errors.New("already shut down")
	ErrUpdate      = errors.New("invalid update")
)

// Priority orders pending jobs of the same function. Higher priorities are
// handed to workers first; equal priorities are first in, first out.
type Priority int

// Priorities, matching the SUBMIT_JOB_LOW, SUBMIT_JOB and SUBMIT_JOB_HIGH
// variants of Gearman.
const (
	PriorityLow Priority = iota - 1
	PriorityNormal
	PriorityHigh
)

// State is the server side state of a job.
type State int

// Job states.
const (
	StatePending State = iota
	StateRunning
	StateComplete
	StateFailed
)

// String returns the lower case name of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request describes a job submitted by a client.
type Request struct {
	Func       string
	Uniq       string
	Arg        []byte
	Priority   Priority
	Background bool
}

// Assignment is a job handed to a worker.
type Assignment struct {
	Handle string
	Func   string
	Uniq   string
	Arg    []byte
}

// Status is a snapshot of a job.
type Status struct {
	Handle      string
	Func        string
	Uniq        string
	Priority    Priority
	Background  bool
	State       State
	Numerator   uint64
	Denominator uint64
	Submitted   time.Time
	Started     time.Time
	Stopped     time.Time
}

// Running reports whether a worker currently holds the job.
func (s Status) Running() bool {
	return s.State == StateRunning
}
