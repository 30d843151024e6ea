package service

import (
	"context"
	"sync"
)

// ExportedSaveGuard is an exported alias so _test packages can test the guard.
type ExportedSaveGuard = saveGuard

// saveGuard admits one save per collection handle at a time and remembers which
// session holds each handle, so a rejected save can name the holder.
type saveGuard struct {
	mu      sync.Mutex
	holders map[string]string // handle → session id
	active  sync.WaitGroup
}

// Acquire claims handle for session. When another save holds it, ok is false and
// holder names that session.
func (g *saveGuard) Acquire(handle, session string) (holder string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, busy := g.holders[handle]; busy {
		return cur, false
	}
	if g.holders == nil {
		g.holders = make(map[string]string)
	}
	g.holders[handle] = session
	g.active.Add(1)
	return session, true
}

// Release frees handle. Releasing a handle that is not held is a no-op.
func (g *saveGuard) Release(handle string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.holders[handle]; !held {
		return
	}
	delete(g.holders, handle)
	g.active.Done()
}

// Holding reports how many saves are in flight.
func (g *saveGuard) Holding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.holders)
}

// WaitAll blocks until in-flight saves finish or ctx is done.
func (g *saveGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
