package task

import "sync"

// Store is the ordered, shared queue of tasks and the single source of truth
// for both the API and the scheduler. Every mutation is read-modify-write
// under the lock; callers never patch a privately cached copy.
//
// Tasks are addressed by their stable ID, never by position, so an
// asynchronous completion arriving after a removal simply finds nothing to
// update instead of patching an unrelated record.
type Store struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]*Task
}

func NewStore() *Store {
	return &Store{tasks: make(map[string]*Task)}
}

// Append adds tasks at the end of the queue in the given order.
func (s *Store) Append(tasks ...*Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		if _, exists := s.tasks[t.ID]; exists {
			continue
		}
		s.tasks[t.ID] = t
		s.order = append(s.order, t.ID)
	}
}

// Get returns a copy of the task with the given ID.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Update applies patch to the task under the lock. It reports false, without
// calling patch, when the ID no longer refers to an existing record; a poll
// resuming after a removal therefore mutates nothing.
func (s *Store) Update(id string, patch func(*Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	patch(t)
	return true
}

// Remove deletes the task and returns a copy of its final state.
func (s *Store) Remove(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return *t, true
}

// Clear empties the queue and returns copies of the removed tasks.
func (s *Store) Clear() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		removed = append(removed, *s.tasks[id])
	}
	s.order = nil
	s.tasks = make(map[string]*Task)
	return removed
}

// Snapshot returns copies of all tasks in insertion order.
func (s *Store) Snapshot() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.tasks[id])
	}
	return out
}

// IdleIDs returns the IDs of all currently idle tasks in insertion order.
func (s *Store) IdleIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, id := range s.order {
		if s.tasks[id].Status == StatusIdle {
			ids = append(ids, id)
		}
	}
	return ids
}

// Names returns the set of names currently present in the queue.
func (s *Store) Names() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]struct{}, len(s.tasks))
	for _, t := range s.tasks {
		names[t.Name] = struct{}{}
	}
	return names
}

// Len returns the number of tasks in the queue.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
