package task

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Task is a single job submission: a function name, its argument and the
// identifiers used to track it. A Task is created by the caller and only
// referenced by the Set holding it.
type Task struct {
	fn       string
	arg      []byte
	uniq     string
	taskType Type

	mutex       sync.Mutex // protects the mutable fields below
	handle      string
	state       State
	result      []byte
	data        []byte
	numerator   uint64
	denominator uint64
	callbacks   map[Event][]CallbackFunc
}

// Option is a functional option for a Task.
type Option func(*Task)

// WithUniq sets the unique ID of the task. Without it a random UUID is used.
func WithUniq(uniq string) Option {
	return func(t *Task) {
		t.uniq = uniq
	}
}

// WithType sets the queueing type of the task.
func WithType(taskType Type) Option {
	return func(t *Task) {
		t.taskType = taskType
	}
}

// WithCallback attaches fn to the given event.
func WithCallback(event Event, fn CallbackFunc) Option {
	return func(t *Task) {
		t.Attach(event, fn)
	}
}

// NewTask creates a pending task for function fn with the given argument.
func NewTask(fn string, arg []byte, opts ...Option) *Task {
	t := &Task{
		fn:        fn,
		arg:       arg,
		callbacks: make(map[Event][]CallbackFunc),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.uniq == "" {
		t.uniq = uuid.NewString()
	}
	return t
}

// Func returns the job function name.
func (t *Task) Func() string { return t.fn }

// Arg returns the job argument.
func (t *Task) Arg() []byte { return t.arg }

// Uniq returns the process unique ID of the task.
func (t *Task) Uniq() string { return t.uniq }

// Type returns the queueing type of the task.
func (t *Task) Type() Type { return t.taskType }

// Handle returns the server assigned handle, or "" before submission.
func (t *Task) Handle() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.handle
}

// State returns the current state of the task.
func (t *Task) State() State {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// Result returns the result sent with the completion of the task.
func (t *Task) Result() []byte {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.result
}

// Data returns all data chunks streamed by the worker so far.
func (t *Task) Data() []byte {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return slices.Clone(t.data)
}

// Status returns the last progress reported by the worker.
func (t *Task) Status() (numerator, denominator uint64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.numerator, t.denominator
}

// Finished reports whether the task completed or failed.
func (t *Task) Finished() bool {
	s := t.State()
	return s == Complete || s == Failed
}

// Attach registers fn to be called on event. Callbacks run in the goroutine
// applying the update, in attachment order.
func (t *Task) Attach(event Event, fn CallbackFunc) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.callbacks[event] = append(t.callbacks[event], fn)
}

// SetStatus records worker progress and fires EventStatus.
func (t *Task) SetStatus(numerator, denominator uint64) {
	t.mutex.Lock()
	t.numerator = numerator
	t.denominator = denominator
	t.mutex.Unlock()
	t.fire(EventStatus)
}

// AppendData records a data chunk streamed by the worker and fires
// EventData.
func (t *Task) AppendData(b []byte) {
	t.mutex.Lock()
	t.data = append(t.data, b...)
	t.mutex.Unlock()
	t.fire(EventData)
}

// Complete marks the task complete with the given result and fires
// EventComplete.
func (t *Task) Complete(result []byte) {
	t.mutex.Lock()
	t.state = Complete
	t.result = result
	t.mutex.Unlock()
	t.fire(EventComplete)
}

// Fail marks the task failed and fires EventFail.
func (t *Task) Fail() {
	t.mutex.Lock()
	t.state = Failed
	t.mutex.Unlock()
	t.fire(EventFail)
}

// setHandle records the server handle. It is only called by Set.Assign.
func (t *Task) setHandle(handle string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handle = handle
	if t.state == Pending {
		t.state = Submitted
	}
}

// fire calls the callbacks for event without holding the task lock, so
// callbacks may read the task.
func (t *Task) fire(event Event) {
	t.mutex.Lock()
	fns := slices.Clone(t.callbacks[event])
	t.mutex.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}
