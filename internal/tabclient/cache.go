// Package tabclient is the client-side provider (C) and screen worker
// (W) (§4.5): a per-tab object the UI calls into, backed by a mutex-
// guarded screen cache and a background worker goroutine that holds the
// subscription connection and applies pushed frames. Grounded on
// virtualterminal.VT's mutex-held-only-around-mutation discipline
// (Mu guards Vt/LastOut, released before any blocking I/O) and on
// catnip's SSEClient (reconnect-with-backoff goroutine driven by a
// stop channel, callbacks invoked outside the lock).
package tabclient

import (
	"sync"

	"h2mux/internal/protocol"
	"h2mux/internal/termemu"
)

// cache holds the latest known screen for one tab plus the bookkeeping
// the provider needs to decide between cache hit, synchronous fetch,
// and spawn-then-retry (§4.5).
type cache struct {
	mu sync.Mutex

	screen termemu.Screen
	rows   int
	cols   int
	valid  bool

	generation uint64
	cwd        string

	graphics [][]byte
}

// get returns the cached screen if it's valid for (rows, cols), clearing
// the edge-triggered bell flag on the way out (§4.5: "clear bell").
func (c *cache) get(rows, cols int) (termemu.Screen, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || c.rows != rows || c.cols != cols {
		return termemu.Screen{}, false
	}
	s := c.screen
	c.screen.Bell = false
	return s, true
}

// replace installs a full screen snapshot as the new cache contents and
// bumps the generation counter.
func (c *cache) replace(rows, cols int, screen termemu.Screen, cwd *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screen = screen
	c.rows = rows
	c.cols = cols
	c.valid = true
	c.generation++
	if cwd != nil {
		c.cwd = *cwd
	}
}

// applyDiff patches the cached screen in place via the changed lines and
// metadata in d, per §4.5 step 7.
func (c *cache) applyDiff(d protocol.ScreenDiffMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return
	}
	protocol.ApplyDiff(&c.screen, d)
	c.generation++
}

// invalidate forces the next get to miss, used when the requested size
// changes or a Resize/Subscribe round-trip is in flight (§4.5).
func (c *cache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

func (c *cache) addGraphics(payloads [][]byte) {
	c.mu.Lock()
	c.graphics = append(c.graphics, payloads...)
	c.mu.Unlock()
}

// drainGraphics returns and clears the pending-graphics queue.
func (c *cache) drainGraphics() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.graphics) == 0 {
		return nil
	}
	g := c.graphics
	c.graphics = nil
	return g
}

func (c *cache) gen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *cache) currentCwd() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cwd
}
