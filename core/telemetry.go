package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Frame describes one task entry on an ExecutionStack.
type Frame struct {
	ID       uint64
	ParentID uint64 // 0 for a root task
	Task     *Task
	Depth    int
	Path     string
	Kind     ContextKind
}

// Result is the outcome of one task run.
type Result struct {
	Output   any
	Code     ReturnCode
	Err      error
	Duration time.Duration
}

// Telemetry observes task execution. Calls arrive concurrently from every
// goroutine executing tasks, so implementations must be thread-safe.
type Telemetry interface {
	// OnEnter is called after the task has been pushed on the stack.
	OnEnter(frame Frame)

	// OnLeave is called before the task is popped, with its final result.
	OnLeave(frame Frame, result Result)

	// OnError is called once per failure, on the task where it originated.
	OnError(frame Frame, err error)
}

// NopTelemetry ignores every event.
type NopTelemetry struct{}

func (NopTelemetry) OnEnter(Frame)         {}
func (NopTelemetry) OnLeave(Frame, Result) {}
func (NopTelemetry) OnError(Frame, error)  {}

// MultiTelemetry fans events out. OnEnter runs in order and OnLeave in
// reverse order, so collectors nest like the tasks they observe.
type MultiTelemetry []Telemetry

func (m MultiTelemetry) OnEnter(frame Frame) {
	for _, t := range m {
		t.OnEnter(frame)
	}
}

func (m MultiTelemetry) OnLeave(frame Frame, result Result) {
	for i := len(m) - 1; i >= 0; i-- {
		m[i].OnLeave(frame, result)
	}
}

func (m MultiTelemetry) OnError(frame Frame, err error) {
	for _, t := range m {
		t.OnError(frame, err)
	}
}

// LoggingTelemetry reports task progress through a Logger.
type LoggingTelemetry struct {
	Logger Logger
}

func NewLoggingTelemetry(logger Logger) *LoggingTelemetry {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &LoggingTelemetry{Logger: logger}
}

func (t *LoggingTelemetry) OnEnter(frame Frame) {
	t.Logger.Debug("task enter", F("path", frame.Path), F("depth", frame.Depth))
}

func (t *LoggingTelemetry) OnLeave(frame Frame, result Result) {
	t.Logger.Debug("task leave",
		F("path", frame.Path),
		F("code", result.Code.String()),
		F("duration", result.Duration),
	)
}

func (t *LoggingTelemetry) OnError(frame Frame, err error) {
	t.Logger.Error("task failed", F("path", frame.Path), F("error", err))
}

// =============================================================================
// ExecutionTrace: Tree of task runs
// =============================================================================

// TraceNode is one task run in an ExecutionTrace.
type TraceNode struct {
	ID        uint64
	Name      string
	Kind      TaskKind
	StartedAt time.Time
	Duration  time.Duration
	Code      ReturnCode
	Err       error
	Done      bool
	Children  []*TraceNode
}

// ExecutionTrace records every task run into a tree. Sub-tasks run by
// worker goroutines are attached to the parallel task that spawned them.
type ExecutionTrace struct {
	mu    sync.Mutex
	nodes map[uint64]*TraceNode
	roots []*TraceNode
}

func NewExecutionTrace() *ExecutionTrace {
	return &ExecutionTrace{nodes: make(map[uint64]*TraceNode)}
}

func (t *ExecutionTrace) OnEnter(frame Frame) {
	node := &TraceNode{
		ID:        frame.ID,
		Name:      frame.Task.String(),
		Kind:      frame.Task.Kind(),
		StartedAt: time.Now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.nodes[frame.ID] = node
	if parent, ok := t.nodes[frame.ParentID]; ok && frame.ParentID != 0 {
		parent.Children = append(parent.Children, node)
		return
	}
	t.roots = append(t.roots, node)
}

func (t *ExecutionTrace) OnLeave(frame Frame, result Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if node, ok := t.nodes[frame.ID]; ok {
		node.Duration = result.Duration
		node.Code = result.Code
		node.Err = result.Err
		node.Done = true
	}
}

func (t *ExecutionTrace) OnError(Frame, error) {}

// Len returns the number of recorded task runs.
func (t *ExecutionTrace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Roots returns a copy of the recorded tree. Children are ordered by start time.
func (t *ExecutionTrace) Roots() []*TraceNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*TraceNode, len(t.roots))
	for i, r := range t.roots {
		out[i] = copyTraceNode(r)
	}
	return out
}

func copyTraceNode(n *TraceNode) *TraceNode {
	cp := *n
	cp.Children = make([]*TraceNode, len(n.Children))
	for i, c := range n.Children {
		cp.Children[i] = copyTraceNode(c)
	}
	sort.SliceStable(cp.Children, func(i, j int) bool {
		return cp.Children[i].StartedAt.Before(cp.Children[j].StartedAt)
	})
	return &cp
}

// String renders the tree, one indented line per task run.
func (t *ExecutionTrace) String() string {
	var b strings.Builder
	for _, r := range t.Roots() {
		writeTraceNode(&b, r, 0)
	}
	return b.String()
}

func writeTraceNode(b *strings.Builder, n *TraceNode, depth int) {
	status := "running"
	if n.Done {
		status = n.Code.String()
	}
	fmt.Fprintf(b, "%s%s (%s) %s %v\n", strings.Repeat("  ", depth), n.Name, n.Kind, status, n.Duration.Round(time.Microsecond))
	for _, c := range n.Children {
		writeTraceNode(b, c, depth+1)
	}
}
