package identity

import "sync"

// Guard tracks the uids already appended to the local registry.
// It is owned by a single workspace and reset on every image teardown.
type Guard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{seen: make(map[string]struct{})}
}

// Admit records uid and returns true, or returns false if it was already admitted.
func (g *Guard) Admit(uid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[uid]; ok {
		return false
	}
	g.seen[uid] = struct{}{}
	return true
}

// Contains reports whether uid was admitted.
func (g *Guard) Contains(uid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[uid]
	return ok
}

// Forget removes uid so a later notification may admit it again.
func (g *Guard) Forget(uid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, uid)
}

// Reset replaces the admitted set with exactly uids.
func (g *Guard) Reset(uids ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		g.seen[uid] = struct{}{}
	}
}

// Len returns the number of admitted uids.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
