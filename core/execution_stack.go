package core

import (
	"strings"
	"sync"
	"sync/atomic"
)

// frameSequence gives every pushed entry a process-wide unique ID, so that
// clones handed to Jobs still identify the frames they were copied from.
var frameSequence atomic.Uint64

// StackEntry is one level of the root-to-task path.
type StackEntry struct {
	ID          uint64
	Description string
	Task        *Task
}

// ExecutionStack is the ordered list of tasks currently active on one branch.
//
// A stack is owned by a single branch. Other goroutines only ever read it
// (Clone, String) to seed a new Job or to report progress, and those reads take
// the same short lock as Push and Pop.
type ExecutionStack struct {
	mu      sync.Mutex
	entries []StackEntry
}

func NewExecutionStack() *ExecutionStack {
	return &ExecutionStack{}
}

// Push appends task to the path and returns the new entry.
func (s *ExecutionStack) Push(task *Task) StackEntry {
	entry := StackEntry{
		ID:          frameSequence.Add(1),
		Description: task.String(),
		Task:        task,
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return entry
}

// Pop removes the innermost entry.
func (s *ExecutionStack) Pop() (StackEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	if n == 0 {
		return StackEntry{}, false
	}
	entry := s.entries[n-1]
	s.entries[n-1] = StackEntry{}
	s.entries = s.entries[:n-1]
	return entry, true
}

// Top returns the innermost entry without removing it.
func (s *ExecutionStack) Top() (StackEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return StackEntry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Parent returns the entry just below the innermost one.
func (s *ExecutionStack) Parent() (StackEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) < 2 {
		return StackEntry{}, false
	}
	return s.entries[len(s.entries)-2], true
}

func (s *ExecutionStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clone returns an independent copy for a new branch.
func (s *ExecutionStack) Clone() *ExecutionStack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &ExecutionStack{entries: append([]StackEntry(nil), s.entries...)}
}

// Entries returns a copy of the path, outermost first.
func (s *ExecutionStack) Entries() []StackEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StackEntry(nil), s.entries...)
}

// String renders the path as "root > child > leaf".
func (s *ExecutionStack) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := make([]string, len(s.entries))
	for i, e := range s.entries {
		parts[i] = e.Description
	}
	return strings.Join(parts, " > ")
}
