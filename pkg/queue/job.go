package queue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juliaogris/gearjob/pkg/job"
)

// queuedJob is a submitted job in any state, from pending to finished.
type queuedJob struct {
	mutex  sync.Mutex // protects concurrent access to status which contains mutable state
	status Status

	seq     uint64 // submission order, used to break priority ties
	arg     []byte
	updates *updateLog
}

// newQueuedJob creates a pending job for req with the given handle.
func newQueuedJob(handle string, seq uint64, req Request) *queuedJob {
	return &queuedJob{
		status: Status{
			Handle:     handle,
			Func:       req.Func,
			Uniq:       req.Uniq,
			Priority:   req.Priority,
			Background: req.Background,
			State:      StatePending,
			Submitted:  time.Now(),
		},
		seq:     seq,
		arg:     req.Arg,
		updates: newUpdateLog(),
	}
}

// getStatus synchronously creates a copy of the job's Status.
func (j *queuedJob) getStatus() Status {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.status
}

// priority returns the job's priority. It never changes after submission.
func (j *queuedJob) priority() Priority {
	return j.status.Priority
}

// assignment marks the job as running and returns what the worker needs to
// run it.
func (j *queuedJob) assignment() Assignment {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.status.State = StateRunning
	j.status.Started = time.Now()
	return Assignment{
		Handle: j.status.Handle,
		Func:   j.status.Func,
		Uniq:   j.status.Uniq,
		Arg:    j.arg,
	}
}

// reset moves a running job back to pending, dropping progress reported
// so far.
func (j *queuedJob) reset() error {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if j.status.State != StateRunning {
		return fmt.Errorf("%w: %q is %s", ErrNotRunning, j.status.Handle, j.status.State)
	}
	j.status.State = StatePending
	j.status.Started = time.Time{}
	j.status.Numerator = 0
	j.status.Denominator = 0
	return nil
}

// apply records a worker update. Only running jobs accept updates; a
// terminal update finishes the job and closes its update log.
func (j *queuedJob) apply(u job.Update) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	switch j.status.State {
	case StateComplete, StateFailed:
		return fmt.Errorf("%w: %q", ErrFinished, j.status.Handle)
	case StatePending:
		return fmt.Errorf("%w: %q", ErrNotRunning, j.status.Handle)
	case StateRunning:
	}
	switch u.Kind {
	case job.UpdateStatus:
		j.status.Numerator = u.Numerator
		j.status.Denominator = u.Denominator
	case job.UpdateData:
	case job.UpdateComplete:
		j.finish(StateComplete)
	case job.UpdateFail:
		if len(u.Data) > 0 {
			slog.Info("job failed", "handle", j.status.Handle, "func", j.status.Func, "reason", string(u.Data))
		}
		u.Data = nil // failure reasons stay on the server
		j.finish(StateFailed)
	default:
		return fmt.Errorf("%w: unknown kind %d for %q", ErrUpdate, u.Kind, j.status.Handle)
	}
	j.updates.append(u)
	if u.Kind.Terminal() {
		j.updates.close()
	}
	return nil
}

// abort fails an unfinished job during shutdown. It reports whether the job
// was aborted.
func (j *queuedJob) abort() bool {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if j.status.State == StateComplete || j.status.State == StateFailed {
		return false
	}
	j.finish(StateFailed)
	j.updates.append(job.Update{Kind: job.UpdateFail})
	j.updates.close()
	return true
}

// finish must be called with j.mutex held.
func (j *queuedJob) finish(state State) {
	j.status.State = state
	j.status.Stopped = time.Now()
}
