package executor

import (
	"sync"
	"time"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// Guard enforces one execution per opportunity: a second attempt while a
// run is in flight, or within the cooldown after a terminal run, is
// refused. Safe for concurrent use.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	recent   map[string]time.Time // opportunity id -> finished at
	cooldown time.Duration
	now      func() time.Time
}

// NewGuard creates a Guard with the given post-execution cooldown. A zero
// cooldown disables the recency check and only blocks concurrent runs.
func NewGuard(cooldown time.Duration) *Guard {
	return &Guard{
		inflight: make(map[string]struct{}),
		recent:   make(map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Begin claims the opportunity for execution. Returns
// ErrExecutionInProgress when it is already running or still cooling
// down.
func (g *Guard) Begin(oppID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.inflight[oppID]; ok {
		return domain.ErrExecutionInProgress
	}
	if g.cooldown > 0 {
		if finished, ok := g.recent[oppID]; ok && g.now().Sub(finished) < g.cooldown {
			return domain.ErrExecutionInProgress
		}
	}
	g.inflight[oppID] = struct{}{}
	return nil
}

// End releases the claim and starts the cooldown window.
func (g *Guard) End(oppID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inflight, oppID)
	g.recent[oppID] = g.now()
}

// Cleanup drops cooldown entries past their window. Call periodically to
// bound memory.
func (g *Guard) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, finished := range g.recent {
		if now.Sub(finished) >= g.cooldown {
			delete(g.recent, id)
		}
	}
}
