package core

import (
	"context"
	"sync/atomic"
)

// CancelSource answers whether the current logical thread has been asked to stop.
// It is polled at task entry only; a running leaf is never interrupted.
type CancelSource interface {
	StopRequested() bool
}

// CancelFlag is a settable CancelSource.
type CancelFlag struct {
	stopped atomic.Bool
}

func NewCancelFlag() *CancelFlag {
	return &CancelFlag{}
}

func (f *CancelFlag) Cancel()             { f.stopped.Store(true) }
func (f *CancelFlag) Reset()              { f.stopped.Store(false) }
func (f *CancelFlag) StopRequested() bool { return f.stopped.Load() }

// CancelSourceFunc adapts a function to CancelSource.
type CancelSourceFunc func() bool

func (f CancelSourceFunc) StopRequested() bool { return f() }

type neverCancel struct{}

func (neverCancel) StopRequested() bool { return false }

// NeverCancel returns a source that never requests a stop.
func NeverCancel() CancelSource {
	return neverCancel{}
}

// CancelOnDone requests a stop once ctx is canceled or its deadline passes.
func CancelOnDone(ctx context.Context) CancelSource {
	return CancelSourceFunc(func() bool {
		return ctx.Err() != nil
	})
}

type anyCancel []CancelSource

func (a anyCancel) StopRequested() bool {
	for _, s := range a {
		if s.StopRequested() {
			return true
		}
	}
	return false
}

// AnyCancel requests a stop as soon as one of sources does. Nil sources are skipped.
func AnyCancel(sources ...CancelSource) CancelSource {
	var out anyCancel
	for _, s := range sources {
		if s == nil {
			continue
		}
		switch v := s.(type) {
		case neverCancel:
		case anyCancel:
			out = append(out, v...)
		default:
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return NeverCancel()
	case 1:
		return out[0]
	default:
		return out
	}
}
