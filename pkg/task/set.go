// Package task provides the client side model of a batch of job
// submissions.
//
// A [Set] groups [Task] values submitted together. Tasks are stored by their
// uniq ID, which is known before submission, and can be found by the handle a
// job server assigns after submission:
//   - Add: idempotent insert keyed by uniq.
//   - Assign: records the server handle of a task.
//   - Get: resolves a handle back to its task.
//   - MarkDone: counts a task as no longer outstanding.
//
// ## Concurrency:
// All Set methods are safe for concurrent use. The uniq map, the handle map
// and the outstanding count are updated together under one lock. Iteration
// does not hold the lock while yielding, so the loop body may call back into
// the set.
package task

import (
	"fmt"
	"iter"
	"sync"
)

// Set is an insertion ordered collection of tasks with lookup by uniq ID and
// by server handle.
type Set struct {
	mutex   sync.Mutex
	tasks   map[string]*Task // uniq -> task
	order   []*Task          // append only, insertion order
	handles map[string]string
	done    map[string]bool
	count   int
}

// NewSet creates a set holding the given tasks. An empty set is finished.
func NewSet(tasks ...*Task) *Set {
	s := &Set{
		tasks:   make(map[string]*Task, len(tasks)),
		handles: make(map[string]string),
		done:    make(map[string]bool),
	}
	for _, t := range tasks {
		s.Add(t)
	}
	return s
}

// Add inserts t keyed by its uniq ID. Adding a uniq ID already in the set is
// a no-op.
func (s *Set) Add(t *Task) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.tasks[t.Uniq()]; ok {
		return
	}
	s.tasks[t.Uniq()] = t
	s.order = append(s.order, t)
	s.count++
}

// Assign records handle as the server handle of the task with the given
// uniq ID. Re-assigning the same handle is a no-op.
func (s *Set) Assign(uniq, handle string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	t, ok := s.tasks[uniq]
	if !ok {
		return fmt.Errorf("%w: uniq %q", ErrTaskNotFound, uniq)
	}
	if owner, ok := s.handles[handle]; ok && owner != uniq {
		return fmt.Errorf("%w: handle %q already assigned to %q", ErrHandleConflict, handle, owner)
	}
	if h := t.Handle(); h != "" && h != handle {
		return fmt.Errorf("%w: task %q already has handle %q", ErrHandleConflict, uniq, h)
	}
	s.handles[handle] = uniq
	t.setHandle(handle)
	return nil
}

// Get returns the task the server handle was assigned to.
//
// It returns ErrHandleNotFound if the handle was never assigned in this set
// and ErrIntegrity if the handle refers to a uniq ID the set does not hold.
func (s *Set) Get(handle string) (*Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	uniq, ok := s.handles[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrHandleNotFound, handle)
	}
	t, ok := s.tasks[uniq]
	if !ok {
		return nil, fmt.Errorf("%w: handle %q refers to unknown uniq %q", ErrIntegrity, handle, uniq)
	}
	return t, nil
}

// Lookup returns the task with the given uniq ID.
func (s *Set) Lookup(uniq string) (*Task, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	t, ok := s.tasks[uniq]
	return t, ok
}

// MarkDone decrements the outstanding count for the task with the given uniq
// ID. Each task can be marked done once; a second call returns
// ErrAlreadyDone, so the count never drops below zero.
func (s *Set) MarkDone(uniq string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.tasks[uniq]; !ok {
		return fmt.Errorf("%w: uniq %q", ErrTaskNotFound, uniq)
	}
	if s.done[uniq] {
		return fmt.Errorf("%w: uniq %q", ErrAlreadyDone, uniq)
	}
	s.done[uniq] = true
	s.count--
	return nil
}

// Finished reports whether no task in the set is outstanding.
func (s *Set) Finished() bool {
	return s.Remaining() == 0
}

// Remaining returns the number of outstanding tasks.
func (s *Set) Remaining() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.count
}

// Len returns the number of tasks in the set, done or not.
func (s *Set) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.order)
}

// All returns an iterator over the tasks in insertion order.
//
// Each call starts a fresh traversal over the tasks present at that moment;
// tasks added during the traversal are not visited by it.
func (s *Set) All() iter.Seq[*Task] {
	return func(yield func(*Task) bool) {
		for _, t := range s.snapshot() {
			if !yield(t) {
				return
			}
		}
	}
}

// Entries is like All but also yields the uniq ID of each task.
func (s *Set) Entries() iter.Seq2[string, *Task] {
	return func(yield func(string, *Task) bool) {
		for _, t := range s.snapshot() {
			if !yield(t.Uniq(), t) {
				return
			}
		}
	}
}

// snapshot returns the current insertion order. The order slice is append
// only, so its capped prefix stays valid without copying.
func (s *Set) snapshot() []*Task {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.order[:len(s.order):len(s.order)]
}
