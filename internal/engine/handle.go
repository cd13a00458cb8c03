package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Handle owns the process-wide engine instance. The engine is loaded on
// the first Acquire and shared by every later caller.
type Handle struct {
	load  Loader
	group singleflight.Group

	mu     sync.RWMutex
	engine *Engine
	closed bool
}

// ErrHandleClosed is returned by Acquire after Close.
var ErrHandleClosed = errors.New("media engine handle is closed")

// NewHandle creates a handle that loads its engine with load.
func NewHandle(load Loader) *Handle {
	return &Handle{load: load}
}

// Acquire returns the shared engine, loading it if needed. Concurrent
// callers during the first load wait for the same result. A failed load is
// not cached, so the next Acquire tries again.
func (h *Handle) Acquire(ctx context.Context) (*Engine, error) {
	if e := h.current(); e != nil {
		return e, nil
	}
	if h.isClosed() {
		return nil, &InitError{Message: "load engine", Err: ErrHandleClosed}
	}

	// The load is shared, so one caller giving up must not abort it.
	loadCtx := context.WithoutCancel(ctx)
	ch := h.group.DoChan("engine", func() (any, error) {
		if e := h.current(); e != nil {
			return e, nil
		}

		e, err := h.load(loadCtx)
		if err != nil {
			var initErr *InitError
			if !errors.As(err, &initErr) {
				err = &InitError{Message: "load engine", Err: err}
			}
			return nil, err
		}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			// Shutdown won the race; nothing will release this engine later.
			_ = e.close()
			return nil, &InitError{Message: "load engine", Err: ErrHandleClosed}
		}
		h.engine = e
		h.mu.Unlock()
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Engine), nil
	}
}

// Loaded reports whether the engine has been initialized.
func (h *Handle) Loaded() bool {
	return h.current() != nil
}

// Close releases the engine's scratch directory. A load still in flight
// discards its engine when it completes.
func (h *Handle) Close() error {
	h.mu.Lock()
	e := h.engine
	h.engine = nil
	h.closed = true
	h.mu.Unlock()

	return e.close()
}

func (h *Handle) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Handle) current() *Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}
