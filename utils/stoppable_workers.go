package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// StoppableWorkers runs background goroutines under one shared context. Stop cancels that
// context and blocks until every goroutine has returned.
type StoppableWorkers interface {
	AddWorkers(...func(context.Context))
	Stop()
	Context() context.Context
}

type workerGroup struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	running sync.WaitGroup
}

// NewStoppableWorkers starts each function in its own goroutine.
func NewStoppableWorkers(funcs ...func(context.Context)) StoppableWorkers {
	return NewStoppableWorkersWithContext(context.Background(), funcs...)
}

// NewStoppableWorkersWithContext is NewStoppableWorkers with the worker context derived from
// parent, so the workers also see parent's cancellation.
func NewStoppableWorkersWithContext(parent context.Context, funcs ...func(context.Context)) StoppableWorkers {
	ctx, cancel := context.WithCancel(parent)
	g := &workerGroup{ctx: ctx, cancel: cancel}
	g.AddWorkers(funcs...)
	return g
}

// AddWorkers is ignored once Stop has been called.
func (g *workerGroup) AddWorkers(funcs ...func(context.Context)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}
	for _, f := range funcs {
		g.running.Add(1)
		goutils.PanicCapturingGo(func() {
			defer g.running.Done()
			f(g.ctx)
		})
	}
}

func (g *workerGroup) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.cancel()
	g.running.Wait()
}

func (g *workerGroup) Context() context.Context {
	return g.ctx
}
