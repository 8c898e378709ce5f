package core

import "context"

// Starter is implemented by components that start background work
// (goroutines, listeners, schedulers). Start must return once the work is
// running.
type Starter interface {
	Start() error
}

// Stopper is implemented by components that need to release resources.
// Called during shutdown in reverse order of Start().
type Stopper interface {
	Stop(ctx context.Context) error
}

// StartFunc adapts a function to Starter.
type StartFunc func() error

// Start implements Starter.
func (f StartFunc) Start() error { return f() }

// StopFunc adapts a function to Stopper.
type StopFunc func(ctx context.Context) error

// Stop implements Stopper.
func (f StopFunc) Stop(ctx context.Context) error { return f(ctx) }

// Hook is a component built from a pair of functions. Either may be nil.
type Hook struct {
	OnStart func() error
	OnStop  func(ctx context.Context) error
}

// Start implements Starter.
func (h Hook) Start() error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart()
}

// Stop implements Stopper.
func (h Hook) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}
