package tailoring

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// LeaveWarning is shown when the user tries to leave during an active job.
const LeaveWarning = "Your resume is still being tailored. Leaving now abandons this attempt; the service may still finish the work."

// Guard warns before leaving while a job is active. It is advisory only.
type Guard interface {
	Engage()
	Release()
	Active() bool
}

// FlagGuard exposes the engaged state for a browser to register its own unload prompt.
type FlagGuard struct {
	active atomic.Bool
}

func (g *FlagGuard) Engage()      { g.active.Store(true) }
func (g *FlagGuard) Release()     { g.active.Store(false) }
func (g *FlagGuard) Active() bool { return g.active.Load() }

// SignalGuard turns the first interrupt during an active job into a warning.
// A second interrupt within the window leaves.
type SignalGuard struct {
	mu       sync.Mutex
	active   bool
	window   time.Duration
	lastWarn time.Time
	warn     func(string)
	now      func() time.Time
}

// NewSignalGuard constructs a SignalGuard printing warnings through warn.
func NewSignalGuard(window time.Duration, warn func(string)) *SignalGuard {
	if window <= 0 {
		window = 5 * time.Second
	}
	return &SignalGuard{window: window, warn: warn, now: time.Now}
}

func (g *SignalGuard) Engage() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = true
	g.lastWarn = time.Time{}
}

func (g *SignalGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
}

func (g *SignalGuard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// ShouldLeave is called on each interrupt and reports whether to exit now.
func (g *SignalGuard) ShouldLeave() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return true
	}
	now := g.now()
	if !g.lastWarn.IsZero() && now.Sub(g.lastWarn) <= g.window {
		return true
	}
	g.lastWarn = now
	if g.warn != nil {
		g.warn(LeaveWarning + " Press Ctrl-C again to leave.")
	}
	return false
}

// Watch consumes interrupts until ctx ends, calling leave once ShouldLeave agrees.
func (g *SignalGuard) Watch(ctx context.Context, signals <-chan os.Signal, leave func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if g.ShouldLeave() {
				leave()
				return
			}
		}
	}
}
