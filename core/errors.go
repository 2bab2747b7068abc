package core

import (
	"errors"
	"fmt"
)

var (
	ErrCanceled       = errors.New("task canceled")
	ErrPoolStopped    = errors.New("thread pool stopped")
	ErrNilTask        = errors.New("task is nil")
	ErrNilState       = errors.New("parallel task prepared a nil state")
	ErrInvalidWorkers = errors.New("worker count must be at least 1")
)

// TaskError reports a failed task together with the execution stack path
// at the time of failure.
type TaskError struct {
	Task string
	Path string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed at [%s]: %v", e.Task, e.Path, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// codeForError maps an error returned by task code onto a ReturnCode.
func codeForError(err error) ReturnCode {
	switch {
	case err == nil:
		return Finished
	case errors.Is(err, ErrCanceled):
		return Canceled
	default:
		return Error
	}
}
