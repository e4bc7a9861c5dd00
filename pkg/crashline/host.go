// host.go defines how the host application announces errors nobody handled.

package crashline

import (
	"context"
	"sync"
)

// Host notifies subscribers of errors that escaped application code.
type Host interface {
	// OnUnhandledError subscribes to errors that are about to crash the process.
	// Handlers run synchronously on the crashing goroutine.
	OnUnhandledError(fn func(ctx context.Context, err error)) (cancel func())

	// OnUnobservedTaskError subscribes to errors returned by background tasks
	// that no caller waited for.
	OnUnobservedTaskError(fn func(ctx context.Context, err error)) (cancel func())
}

// ProcessHost is a Host for plain Go programs. Code opts in by running under
// Guard or Go.
type ProcessHost struct {
	mu         sync.RWMutex
	nextID     int
	unhandled  map[int]func(context.Context, error)
	unobserved map[int]func(context.Context, error)
}

// NewProcessHost creates a ProcessHost with no subscribers.
func NewProcessHost() *ProcessHost {
	return &ProcessHost{
		unhandled:  make(map[int]func(context.Context, error)),
		unobserved: make(map[int]func(context.Context, error)),
	}
}

// OnUnhandledError implements Host.
func (h *ProcessHost) OnUnhandledError(fn func(ctx context.Context, err error)) func() {
	return h.subscribe(h.unhandled, fn)
}

// OnUnobservedTaskError implements Host.
func (h *ProcessHost) OnUnobservedTaskError(fn func(ctx context.Context, err error)) func() {
	return h.subscribe(h.unobserved, fn)
}

func (h *ProcessHost) subscribe(set map[int]func(context.Context, error), fn func(context.Context, error)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	set[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(set, id)
		})
	}
}

func (h *ProcessHost) handlers(set map[int]func(context.Context, error)) []func(context.Context, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]func(context.Context, error), 0, len(set))
	for _, fn := range set {
		out = append(out, fn)
	}
	return out
}

// Guard runs fn. If fn panics, unhandled-error subscribers are notified
// with a *PanicError and the panic continues.
func (h *ProcessHost) Guard(ctx context.Context, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.notifyUnhandled(ctx, NewPanicError(r))
			panic(r)
		}
	}()
	fn()
}

// Go runs fn on a new goroutine under Guard. A non-nil error returned by fn
// goes to unobserved-task subscribers.
func (h *ProcessHost) Go(ctx context.Context, fn func(ctx context.Context) error) {
	go h.Guard(ctx, func() {
		if err := fn(ctx); err != nil {
			h.Report(ctx, err)
		}
	})
}

// Report hands an unobserved task error to subscribers.
func (h *ProcessHost) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	for _, fn := range h.handlers(h.unobserved) {
		fn(ctx, err)
	}
}

func (h *ProcessHost) notifyUnhandled(ctx context.Context, err error) {
	for _, fn := range h.handlers(h.unhandled) {
		func() {
			// A failing subscriber must not mask the original panic.
			defer func() { _ = recover() }()
			fn(ctx, err)
		}()
	}
}
