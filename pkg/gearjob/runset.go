package gearjob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/juliaogris/gearjob/pkg/job"
	"github.com/juliaogris/gearjob/pkg/task"
	"golang.org/x/sync/errgroup"
)

// RunSet submits the pending tasks of set and follows them until every task
// is done, running their callbacks as updates arrive. Background tasks are
// done as soon as they have a handle. Tasks added to set by callbacks are
// submitted once the tasks already in flight have finished.
//
// Callbacks are called from the goroutine calling RunSet. An update for a
// handle that set does not know is logged and ignored; an integrity error
// of set aborts the run.
func (c *Client) RunSet(ctx context.Context, set *task.Set) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	r := &setRun{
		client:   c,
		set:      set,
		g:        g,
		ctx:      gctx,
		events:   make(chan watchEvent),
		followed: make(map[string]bool),
	}
	err := r.run()
	cancel()
	if werr := g.Wait(); werr != nil && (err == nil || errors.Is(err, context.Canceled)) {
		err = werr
	}
	return err
}

type watchEvent struct {
	handle string
	update job.Update
	closed bool
}

type setRun struct {
	client *Client
	set    *task.Set
	g      *errgroup.Group
	//nolint:containedctx // lifetime of a single RunSet call
	ctx      context.Context
	events   chan watchEvent
	followed map[string]bool
	active   int
}

func (r *setRun) run() error {
	for !r.set.Finished() {
		submitted, err := r.submitPending()
		if err != nil {
			return err
		}
		if submitted == 0 && r.active == 0 {
			return fmt.Errorf("%w: %d tasks outstanding", ErrIncomplete, r.set.Remaining())
		}
		if err := r.drain(); err != nil {
			return err
		}
	}
	return nil
}

// submitPending submits pending tasks and follows submitted ones not yet
// followed. It returns the number of tasks newly followed or marked done.
func (r *setRun) submitPending() (int, error) {
	n := 0
	for t := range r.set.All() {
		if t.Finished() {
			continue
		}
		handle := t.Handle()
		if handle == "" {
			h, err := r.client.SubmitTask(r.ctx, t)
			if err != nil {
				return n, fmt.Errorf("cannot submit task %q: %w", t.Uniq(), err)
			}
			if err := r.set.Assign(t.Uniq(), h); err != nil {
				return n, err
			}
			slog.Debug("task submitted", "uniq", t.Uniq(), "handle", h, "type", t.Type())
			if t.Type() == task.Background {
				if err := r.set.MarkDone(t.Uniq()); err != nil {
					return n, err
				}
				n++
				continue
			}
			handle = h
		} else if t.Type() == task.Background || r.followed[handle] {
			continue
		}
		r.follow(handle)
		n++
	}
	return n, nil
}

func (r *setRun) follow(handle string) {
	r.followed[handle] = true
	r.active++
	r.g.Go(func() error {
		stream, err := r.client.Watch(r.ctx, handle)
		if err != nil {
			return err
		}
		for {
			u, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return r.send(watchEvent{handle: handle, closed: true})
			}
			if err != nil {
				return err
			}
			if err := r.send(watchEvent{handle: handle, update: u}); err != nil {
				return err
			}
		}
	})
}

func (r *setRun) send(ev watchEvent) error {
	select {
	case r.events <- ev:
		return nil
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

// drain applies events until no followed job is left.
func (r *setRun) drain() error {
	for r.active > 0 {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		case ev := <-r.events:
			if ev.closed {
				r.active--
				continue
			}
			if err := r.apply(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *setRun) apply(ev watchEvent) error {
	t, err := r.set.Get(ev.handle)
	if errors.Is(err, task.ErrHandleNotFound) {
		slog.Warn("ignoring update for unknown handle", "handle", ev.handle, "kind", ev.update.Kind)
		return nil
	}
	if err != nil {
		return err
	}
	u := ev.update
	switch u.Kind {
	case job.UpdateStatus:
		t.SetStatus(u.Numerator, u.Denominator)
	case job.UpdateData:
		t.AppendData(u.Data)
	case job.UpdateComplete:
		t.Complete(u.Data)
		return r.set.MarkDone(t.Uniq())
	case job.UpdateFail:
		t.Fail()
		return r.set.MarkDone(t.Uniq())
	}
	return nil
}
