// Package queue provides the in-memory core of a gearjob job server.
//
// It provides methods to manage jobs:
//   - Submit: Queues a job for a function and returns its handle.
//   - Grab: Blocks until a job for one of a worker's functions is queued.
//   - Update: Records status, data, completion or failure from a worker.
//   - Status: Returns the current status of a job.
//   - Watch: Replays and follows the updates of a job.
//
// ## Unique jobs:
// A job submitted with the same function and uniq ID as an unfinished job is
// coalesced with it: both submissions share one handle and one result.
//
// ## Retention:
// Finished jobs stay queryable with Status and Watch for the retention
// period set with WithRetention, or for the lifetime of the Queue by default.
// Watchers created before a job is forgotten keep working.
//
// ## Concurrency:
// All Queue methods are safe for concurrent use. Status returns a copy.
package queue

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juliaogris/gearjob/pkg/job"
)

// Queue holds the jobs of a job server.
type Queue struct {
	mutex     sync.Mutex
	jobs      map[string]*queuedJob   // handle -> job, retained finished jobs included
	pending   map[string][]*queuedJob // func -> pending jobs in grab order
	uniqs     map[uniqKey]string      // unfinished jobs with a uniq ID -> handle
	maxID     atomic.Uint64
	hostname  string
	retention time.Duration
	shutDown  bool

	// wake is closed and replaced whenever a job becomes pending or the
	// queue shuts down, waking all blocked Grab calls.
	wake chan struct{}
}

type uniqKey struct {
	fn   string
	uniq string
}

// NewQueue creates a new Queue with the given options.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		jobs:    make(map[string]*queuedJob),
		pending: make(map[string][]*queuedJob),
		uniqs:   make(map[uniqKey]string),
		wake:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			slog.Error("cannot get hostname, using localhost", "err", err)
			hostname = "localhost"
		}
		q.hostname = hostname
	}
	return q
}

// Option is a functional option for the Queue.
type Option func(*Queue)

// WithHostname sets the host name embedded in job handles.
func WithHostname(hostname string) Option {
	return func(q *Queue) {
		q.hostname = hostname
	}
}

// WithRetention sets how long finished jobs are kept for Status and Watch.
// Zero, the default, keeps them until the Queue is discarded.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) {
		q.retention = d
	}
}

// Submit queues the job described by req and returns its handle.
//
// If req has a uniq ID and an unfinished job with the same function and
// uniq ID exists, that job's handle is returned instead.
func (q *Queue) Submit(req Request) (string, error) {
	if err := job.ValidateName(req.Func); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFunction, err)
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.shutDown {
		return "", fmt.Errorf("cannot submit job: %w", ErrShutdown)
	}
	key := uniqKey{fn: req.Func, uniq: req.Uniq}
	if req.Uniq != "" {
		if handle, ok := q.uniqs[key]; ok {
			return handle, nil
		}
	}
	seq := q.maxID.Add(1)
	handle := fmt.Sprintf("H:%s:%d", q.hostname, seq)
	j := newQueuedJob(handle, seq, req)
	q.jobs[handle] = j
	if req.Uniq != "" {
		q.uniqs[key] = handle
	}
	q.enqueueLocked(j, false)
	return handle, nil
}

// Grab blocks until a pending job for one of funcs is available and hands it
// to the caller, which becomes responsible for sending updates until the job
// completes or fails.
//
// Higher priority jobs are handed out first; ties go to the earliest
// submission across all of funcs.
func (q *Queue) Grab(ctx context.Context, funcs []string) (Assignment, error) {
	if len(funcs) == 0 {
		return Assignment{}, fmt.Errorf("%w: no functions to grab", ErrFunction)
	}
	for {
		if err := ctx.Err(); err != nil {
			return Assignment{}, fmt.Errorf("cannot grab job: %w", err)
		}
		q.mutex.Lock()
		if q.shutDown {
			q.mutex.Unlock()
			return Assignment{}, fmt.Errorf("cannot grab job: %w", ErrShutdown)
		}
		if j := q.popLocked(funcs); j != nil {
			q.mutex.Unlock()
			return j.assignment(), nil
		}
		wake := q.wake
		q.mutex.Unlock()
		select {
		case <-ctx.Done():
			return Assignment{}, fmt.Errorf("cannot grab job: %w", ctx.Err())
		case <-wake:
		}
	}
}

// Requeue puts a running job back at the front of its function's queue, for
// example because the worker that grabbed it went away.
func (q *Queue) Requeue(handle string) error {
	j, err := q.get(handle)
	if err != nil {
		return err
	}
	if err := j.reset(); err != nil {
		return err
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.shutDown {
		return fmt.Errorf("cannot requeue %q: %w", handle, ErrShutdown)
	}
	q.enqueueLocked(j, true)
	return nil
}

// Update records an update sent by the worker running the job.
func (q *Queue) Update(handle string, u job.Update) error {
	j, err := q.get(handle)
	if err != nil {
		return err
	}
	if err := j.apply(u); err != nil {
		return err
	}
	if u.Kind.Terminal() {
		q.forgetUniq(j)
		q.evictAfterRetention(handle)
	}
	return nil
}

// Status retrieves the status of the job with the given handle.
func (q *Queue) Status(handle string) (Status, error) {
	j, err := q.get(handle)
	if err != nil {
		return Status{}, err
	}
	return j.getStatus(), nil
}

// Watch returns a Watcher over all updates of the job with the given handle,
// past and future. ctx bounds the lifetime of the watcher.
func (q *Queue) Watch(ctx context.Context, handle string) (*Watcher, error) {
	j, err := q.get(handle)
	if err != nil {
		return nil, err
	}
	return j.updates.newWatcher(ctx), nil
}

// Shutdown stops handing out jobs and fails all unfinished jobs so their
// watchers terminate.
//
// This method should be called only during shutdown. Further calls to
// Submit and Grab return ErrShutdown.
func (q *Queue) Shutdown() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.shutDown {
		slog.Info("queue already shut down")
		return nil
	}
	q.shutDown = true
	close(q.wake)

	aborted := 0
	for _, j := range q.jobs {
		if j.abort() {
			aborted++
		}
	}
	clear(q.pending)
	clear(q.uniqs)
	if aborted > 0 {
		slog.Info("failed unfinished jobs on shutdown", "count", aborted)
	}
	return nil
}

// get retrieves a job by handle. It is synchronized to ensure safe
// concurrent access to the job map.
func (q *Queue) get(handle string) (*queuedJob, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	j, ok := q.jobs[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrJobNotFound, handle)
	}
	return j, nil
}

// forgetUniq allows a new job to reuse the uniq ID of a finished one.
func (q *Queue) forgetUniq(j *queuedJob) {
	s := j.getStatus()
	if s.Uniq == "" {
		return
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	key := uniqKey{fn: s.Func, uniq: s.Uniq}
	if q.uniqs[key] == s.Handle {
		delete(q.uniqs, key)
	}
}

// evictAfterRetention forgets the finished job with the given handle once
// the retention period has passed.
func (q *Queue) evictAfterRetention(handle string) {
	if q.retention <= 0 {
		return
	}
	time.AfterFunc(q.retention, func() {
		q.mutex.Lock()
		defer q.mutex.Unlock()
		delete(q.jobs, handle)
	})
}

// enqueueLocked inserts j into its function's pending list behind all jobs
// of the same or higher priority, or in front of all jobs of the same or
// lower priority if front is set. It must be called with q.mutex held.
func (q *Queue) enqueueLocked(j *queuedJob, front bool) {
	fn := j.status.Func
	list := q.pending[fn]
	i := slices.IndexFunc(list, func(other *queuedJob) bool {
		if front {
			return other.priority() <= j.priority()
		}
		return other.priority() < j.priority()
	})
	if i < 0 {
		i = len(list)
	}
	q.pending[fn] = slices.Insert(list, i, j)
	close(q.wake)
	q.wake = make(chan struct{})
}

// popLocked removes and returns the next job for funcs, or nil. It must be
// called with q.mutex held.
func (q *Queue) popLocked(funcs []string) *queuedJob {
	var best *queuedJob
	for _, fn := range funcs {
		list := q.pending[fn]
		if len(list) == 0 {
			continue
		}
		head := list[0]
		if best == nil || compareJobs(head, best) < 0 {
			best = head
		}
	}
	if best == nil {
		return nil
	}
	fn := best.status.Func
	q.pending[fn] = q.pending[fn][1:]
	if len(q.pending[fn]) == 0 {
		delete(q.pending, fn)
	}
	return best
}

// compareJobs orders jobs by descending priority, then by submission.
func compareJobs(a, b *queuedJob) int {
	if c := cmp.Compare(b.priority(), a.priority()); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}
