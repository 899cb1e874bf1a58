package guard

import (
	"sync"

	pkgerrors "github.com/ousepachn/insta-media-sync/pkg/errors"
)

// Guard serializes pipeline runs per username. The snapshot is plain
// read-modify-write with no optimistic concurrency control, so two
// concurrent runs against the same username would race; the guard makes
// that impossible at the entry point instead of hoping callers behave.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func New() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// Acquire claims the username for one run. It returns a release func on
// success and ErrRunInProgress when another run already holds it.
func (g *Guard) Acquire(username string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inflight[username]; busy {
		return nil, pkgerrors.ErrRunInProgress
	}
	g.inflight[username] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, username)
			g.mu.Unlock()
		})
	}
	return release, nil
}

// Busy reports whether a run currently holds the username. Advisory only:
// the answer can be stale by the time the caller acts on it, so Acquire
// remains the authority.
func (g *Guard) Busy(username string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inflight[username]
	return busy
}
