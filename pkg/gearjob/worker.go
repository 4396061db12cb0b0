package gearjob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juliaogris/gearjob/pkg/job"
	"github.com/juliaogris/gearjob/pkg/queue"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// reportTimeout bounds the final update or requeue of a job, which is sent
// even when the worker's context is done.
const reportTimeout = 5 * time.Second

// Worker grabs jobs from a server, creates their handlers with a
// [job.Dispatcher] and runs them.
type Worker struct {
	client      *Client
	dispatcher  *job.Dispatcher
	funcs       []string
	concurrency int
	retryDelay  time.Duration
}

// WorkerOption is a functional option for a Worker.
type WorkerOption func(*Worker)

// WithConcurrency sets the number of jobs a worker runs at the same time.
// Values below 1 are ignored; the default is 1.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithRetryDelay sets how long a worker waits before grabbing again after
// the server was unavailable. The default is one second.
func WithRetryDelay(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retryDelay = d
	}
}

// NewWorker creates a worker that grabs jobs of funcs through client.
func NewWorker(client *Client, dispatcher *job.Dispatcher, funcs []string, opts ...WorkerOption) *Worker {
	w := &Worker{
		client:      client,
		dispatcher:  dispatcher,
		funcs:       funcs,
		concurrency: 1,
		retryDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Work runs jobs until ctx is done, returning nil then. Jobs still running
// at that point are handed back to the server. While the server is
// unavailable it keeps retrying; any other failure to grab a job is
// returned.
func (w *Worker) Work(ctx context.Context) error {
	if len(w.funcs) == 0 {
		return fmt.Errorf("%w: worker has no functions", queue.ErrFunction)
	}
	slog.Info("worker started", "funcs", w.funcs, "concurrency", w.concurrency)
	g, ctx := errgroup.WithContext(ctx)
	for range w.concurrency {
		g.Go(func() error { return w.loop(ctx) })
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	for ctx.Err() == nil {
		a, err := w.client.Grab(ctx, w.funcs)
		if ctx.Err() != nil {
			if err == nil {
				w.requeue(ctx, a)
			}
			return nil
		}
		if status.Code(err) == codes.Unavailable {
			slog.Warn("server unavailable, retrying", "err", err, "delay", w.retryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.retryDelay):
			}
			continue
		}
		if err != nil {
			return err
		}
		w.run(ctx, a)
	}
	return nil
}

// run runs a single job. Failures are reported to the server as fail
// updates; errors sending updates are logged. A job interrupted by ctx is
// requeued.
func (w *Worker) run(ctx context.Context, a queue.Assignment) {
	log := slog.With("handle", a.Handle, "func", a.Func)
	h, err := w.dispatcher.Create(a.Func, w.client, a.Handle)
	if err != nil {
		log.Error("cannot create job handler", "err", err)
		rctx, cancel := reportContext(ctx)
		defer cancel()
		if err := job.NewCommon(w.client, a.Handle).Fail(rctx, err); err != nil {
			log.Error("cannot report failure", "err", err)
		}
		return
	}
	log.Debug("job started")
	result, err := h.Run(ctx, a.Arg)
	if err != nil && ctx.Err() != nil {
		log.Info("job interrupted", "err", err)
		w.requeue(ctx, a)
		return
	}
	rctx, cancel := reportContext(ctx)
	defer cancel()
	if err != nil {
		log.Info("job failed", "err", err)
		if err := h.Fail(rctx, err); err != nil {
			log.Error("cannot report failure", "err", err)
		}
		return
	}
	if err := h.Complete(rctx, result); err != nil {
		log.Error("cannot report completion", "err", err)
		return
	}
	log.Debug("job complete")
}

func (w *Worker) requeue(ctx context.Context, a queue.Assignment) {
	rctx, cancel := reportContext(ctx)
	defer cancel()
	if err := w.client.Requeue(rctx, a.Handle); err != nil {
		slog.Error("cannot requeue job", "handle", a.Handle, "func", a.Func, "err", err)
		return
	}
	slog.Info("job requeued", "handle", a.Handle, "func", a.Func)
}

// reportContext returns a context for the final report of a job that
// outlives the cancellation of ctx.
func reportContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
}
