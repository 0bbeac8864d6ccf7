// Package lane runs node builds on one of three execution lanes.
//
// The cooperative lane runs tasks inline on the caller's goroutine. The thread
// lane runs them on a bounded goroutine pool. The process lane ships the
// node's spec to a pool of re-executed worker processes, which rebuild the
// fixture, generate it and persist it to the cache path they were given.
package lane

import (
	"context"
	"fmt"

	"genesynth/internal/fixture"
)

// Name identifies a lane.
type Name string

const (
	Cooperative Name = "cooperative"
	Thread      Name = "thread"
	Process     Name = "process"
)

// Task is one unit of lane work.
//
// In-process lanes call Run. The process lane cannot ship closures, so it
// sends Spec and Out to a worker instead; a process task must set both.
type Task struct {
	Name string
	Spec fixture.Spec
	Out  string
	Run  func(ctx context.Context) error
}

// Lane accepts tasks and reports their completion through a Future.
type Lane interface {
	Name() Name
	Submit(ctx context.Context, t Task) *Future
	Close() error
}

// Future is the pending result of a submitted task.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

// settled returns a Future that already completed with err.
func settled(err error) *Future {
	f := newFuture()
	f.settle(err)
	return f
}

func (f *Future) settle(err error) {
	f.err = err
	close(f.done)
}

// Done is closed once the task has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the task finishes or ctx is done.
func (f *Future) Await(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Inline is the cooperative lane.
type Inline struct{}

func (Inline) Name() Name { return Cooperative }

func (Inline) Submit(ctx context.Context, t Task) *Future {
	if t.Run == nil {
		return settled(fmt.Errorf("task %s has nothing to run", t.Name))
	}
	if err := context.Cause(ctx); err != nil {
		return settled(err)
	}
	return settled(t.Run(ctx))
}

func (Inline) Close() error { return nil }
