package queue

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/juliaogris/gearjob/pkg/job"
)

// updateLog records every update of a job and lets any number of watchers
// replay and follow it.
type updateLog struct {
	mutex   sync.Mutex
	updates []job.Update
	closed  bool

	// changed is closed and replaced on every append and on close, waking
	// all watchers blocked on it.
	changed chan struct{}
}

func newUpdateLog() *updateLog {
	return &updateLog{changed: make(chan struct{})}
}

// append adds u to the log and wakes all watchers. Appending to a closed
// log is a no-op.
func (l *updateLog) append(u job.Update) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return
	}
	l.updates = append(l.updates, u)
	close(l.changed)
	l.changed = make(chan struct{})
}

// close marks the end of the log. Watchers receive io.EOF once they have
// read all updates.
func (l *updateLog) close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.changed)
}

// since returns the updates from startIdx on, whether the log is closed and
// the channel to wait on for more.
func (l *updateLog) since(startIdx int) ([]job.Update, bool, <-chan struct{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if startIdx >= len(l.updates) {
		return nil, l.closed, l.changed
	}
	return slices.Clone(l.updates[startIdx:]), l.closed, l.changed
}

// newWatcher creates an independent watcher starting at the first update.
// ctx bounds the lifetime of the watcher.
func (l *updateLog) newWatcher(ctx context.Context) *Watcher {
	return &Watcher{ctx: ctx, log: l}
}

// Watcher reads the updates of a single job, replaying those already
// recorded before following new ones.
type Watcher struct {
	startIdx int
	ctx      context.Context //nolint:containedctx // The context is used to cancel Next.
	log      *updateLog
}

// Next returns the next available updates, blocking until there is at
// least one.
//
// It returns io.EOF after the last update of a finished job and an error
// wrapping the context error if the watcher's context is done.
func (w *Watcher) Next() ([]job.Update, error) {
	for {
		if err := w.ctx.Err(); err != nil {
			return nil, fmt.Errorf("watcher context done: %w", err)
		}
		updates, closed, changed := w.log.since(w.startIdx)
		if len(updates) > 0 {
			w.startIdx += len(updates)
			return updates, nil
		}
		if closed {
			return nil, io.EOF
		}
		select {
		case <-w.ctx.Done():
			return nil, fmt.Errorf("watcher context received done: %w", w.ctx.Err())
		case <-changed:
		}
	}
}
