package viewer

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrLibraryNotLoaded = errors.New("PDF library not loaded")

// Readiness is resolved exactly once, when the PDF capability becomes
// available. Waiters block until then or until their deadline.
type Readiness struct {
	once  sync.Once
	ready chan struct{}
	cap   Capability
}

func NewReadiness() *Readiness {
	return &Readiness{ready: make(chan struct{})}
}

// Resolve publishes the capability. Later calls are ignored.
func (r *Readiness) Resolve(c Capability) {
	r.once.Do(func() {
		r.cap = c
		close(r.ready)
	})
}

// Ready returns a capability that is already resolved.
func Ready(c Capability) *Readiness {
	r := NewReadiness()
	r.Resolve(c)
	return r
}

// Wait blocks until the capability is resolved, timeout elapses or ctx ends.
func (r *Readiness) Wait(ctx context.Context, timeout time.Duration) (Capability, error) {
	select {
	case <-r.ready:
		return r.cap, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.ready:
		return r.cap, nil
	case <-timer.C:
		return nil, ErrLibraryNotLoaded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
