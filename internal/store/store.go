package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ytget/mediaqueue/internal/model"
)

// Store is the copy-on-write task list. The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[[]*model.Task]

	subMu sync.Mutex
	subs  map[*subscriber]struct{}
}

type subscriber struct {
	ch chan []model.Task
}

// New creates an empty store
func New() *Store {
	s := &Store{subs: make(map[*subscriber]struct{})}
	empty := make([]*model.Task, 0)
	s.snapshot.Store(&empty)
	return s
}

func (s *Store) load() []*model.Task {
	return *s.snapshot.Load()
}

// publish installs tasks as the current snapshot and notifies subscribers. Callers hold mu.
func (s *Store) publish(tasks []*model.Task) {
	s.snapshot.Store(&tasks)
	s.notify(values(tasks))
}

// Insert appends a task. The store keeps its own copy.
func (s *Store) Insert(task *model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	next := make([]*model.Task, len(cur), len(cur)+1)
	copy(next, cur)
	s.publish(append(next, task.Clone()))
}

// Update applies fn to a copy of the task with the given id and publishes the
// result. fn returning false discards the change. Update reports whether a
// change was published; it is false for unknown ids.
func (s *Store) Update(id string, fn func(t *model.Task) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	for i, t := range cur {
		if t.ID != id {
			continue
		}
		clone := t.Clone()
		if !fn(clone) {
			return false
		}
		next := make([]*model.Task, len(cur))
		copy(next, cur)
		next[i] = clone
		s.publish(next)
		return true
	}
	return false
}

// Delete removes the task with the given id. Deleting an absent task is a no-op returning false.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	for i, t := range cur {
		if t.ID != id {
			continue
		}
		next := make([]*model.Task, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		s.publish(next)
		return true
	}
	return false
}

// Get returns a copy of the task with the given id
func (s *Store) Get(id string) (model.Task, bool) {
	for _, t := range s.load() {
		if t.ID == id {
			return *t.Clone(), true
		}
	}
	return model.Task{}, false
}

// Snapshot returns copies of all tasks in insertion order
func (s *Store) Snapshot() []model.Task {
	return values(s.load())
}

// Len returns the number of tasks
func (s *Store) Len() int {
	return len(s.load())
}

// Count returns the number of tasks in the given status
func (s *Store) Count(status model.TaskStatus) int {
	n := 0
	for _, t := range s.load() {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Subscribe delivers the current snapshot and then every newer one. Delivery is
// latest-wins: a slow reader only sees the most recent snapshot. The channel is
// closed when ctx is done.
func (s *Store) Subscribe(ctx context.Context) <-chan []model.Task {
	sub := &subscriber{ch: make(chan []model.Task, 1)}

	s.subMu.Lock()
	s.subs[sub] = struct{}{}
	sub.ch <- s.Snapshot()
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subs, sub)
		close(sub.ch)
		s.subMu.Unlock()
	}()

	return sub.ch
}

func (s *Store) notify(snapshot []model.Task) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for sub := range s.subs {
		// Drop a stale undelivered snapshot to make room for the newer one
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snapshot:
		default:
		}
	}
}

func values(tasks []*model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	for i, t := range tasks {
		out[i] = *t.Clone()
	}
	return out
}
