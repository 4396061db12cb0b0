package job

import (
	"context"
	"errors"
)

// Sentinel Errors returned by the job package.
var (
	ErrUnresolvableJob = errors.New("unresolvable job")
	ErrInvalidHandler  = errors.New("invalid job handler")
	ErrJobName         = errors.New("invalid job name")
	ErrDuplicateJob    = errors.New("job already registered")
)

// UpdateKind identifies what a worker reports about a running job.
type UpdateKind int

// Update kinds, mirroring the worker side WORK_* packets of Gearman.
const (
	UpdateStatus UpdateKind = iota + 1
	UpdateData
	UpdateComplete
	UpdateFail
)

// String returns the lower case name of the update kind.
func (k UpdateKind) String() string {
	switch k {
	case UpdateStatus:
		return "status"
	case UpdateData:
		return "data"
	case UpdateComplete:
		return "complete"
	case UpdateFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Terminal reports whether the update ends the job.
func (k UpdateKind) Terminal() bool {
	return k == UpdateComplete || k == UpdateFail
}

// Update is a single report from a worker about a job.
type Update struct {
	Kind        UpdateKind
	Data        []byte
	Numerator   uint64
	Denominator uint64
}

// Conn is the link to the job server a job was received on. Handlers use it
// to report progress and results; the dispatcher only passes it through.
type Conn interface {
	Update(ctx context.Context, handle string, u Update) error
}

// Handler is the contract every job implementation satisfies. Embedding
// [*Common] provides everything but Run.
type Handler interface {
	Handle() string
	Run(ctx context.Context, arg []byte) ([]byte, error)
	Status(ctx context.Context, numerator, denominator uint64) error
	Data(ctx context.Context, b []byte) error
	Complete(ctx context.Context, result []byte) error
	Fail(ctx context.Context, err error) error
}

// Factory constructs a job bound to the connection and handle it was
// received with. The result is checked against [Handler] by the
// [Dispatcher].
type Factory func(conn Conn, handle string) any

// Resolver maps a job name to a factory. Implementations return an error
// wrapping ErrUnresolvableJob when they do not know the name.
type Resolver interface {
	Resolve(name string) (Factory, error)
}
