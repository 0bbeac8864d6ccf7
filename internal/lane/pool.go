package lane

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool is the thread lane: a bounded set of goroutines.
type Pool struct {
	g   errgroup.Group
	log *zap.Logger
}

// NewPool admits at most size tasks at once. Submit blocks while the pool is
// full.
func NewPool(size int, log *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{log: log}
	p.g.SetLimit(size)
	return p
}

func (p *Pool) Name() Name { return Thread }

func (p *Pool) Submit(ctx context.Context, t Task) *Future {
	if t.Run == nil {
		return settled(fmt.Errorf("task %s has nothing to run", t.Name))
	}
	f := newFuture()
	p.g.Go(func() error {
		if err := context.Cause(ctx); err != nil {
			f.settle(err)
			return nil
		}
		err := t.Run(ctx)
		if err != nil {
			p.log.Debug("thread task failed", zap.String("task", t.Name), zap.Error(err))
		}
		f.settle(err)
		return nil
	})
	return f
}

// Close waits for every submitted task to finish.
func (p *Pool) Close() error { return p.g.Wait() }
