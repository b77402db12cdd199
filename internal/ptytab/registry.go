package ptytab

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"h2mux/internal/termemu"
)

// errSpawnFailedConcurrently is returned when a Spawn call piggybacks on
// an in-flight Spawn for the same id that ultimately failed to start.
var errSpawnFailedConcurrently = errors.New("ptytab: concurrent spawn for this id failed")

// entry reserves a registry slot before the child process exists: Get
// blocks on ready until Spawn finishes populating tab (or fails, leaving
// tab nil and the entry removed).
type entry struct {
	ready chan struct{}
	tab   *Tab
}

// Registry is the daemon-wide tab_id -> Tab map. Lookups are keyed by
// opaque id; insertion order carries no meaning (§3).
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	log     zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{entries: make(map[string]*entry), log: log}
}

// SpawnResult reports whether Spawn created a new tab or found an
// already-registered one (§4.3 idempotent spawn).
type SpawnResult struct {
	Tab            *Tab
	AlreadyExisted bool
}

// SpawnParams bundles the arguments needed to start a new Tab's child
// process, keeping Registry.Spawn's signature manageable.
type SpawnParams struct {
	Command       string
	Args          []string
	Rows, Cols    int
	Cwd           string
	Env           map[string]string
	Strategy      termemu.ResizeStrategy
	MaxScrollback int
}

// Spawn registers tab_id immediately (before the child forks, so a
// concurrent Subscribe finds the tab right away, blocking on Get until
// the child has actually started) and idempotently returns the existing
// tab if one is already registered under this id. The daemon does not
// resize on re-spawn: resizing would clear the screen for non-reflowing
// emulators (§4.3).
func (r *Registry) Spawn(id string, p SpawnParams) (SpawnResult, error) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		r.mu.Unlock()
		<-e.ready
		if e.tab == nil {
			return SpawnResult{}, errSpawnFailedConcurrently
		}
		return SpawnResult{Tab: e.tab, AlreadyExisted: true}, nil
	}
	e := &entry{ready: make(chan struct{})}
	r.entries[id] = e
	r.mu.Unlock()

	t, err := Spawn(id, p.Command, p.Args, p.Rows, p.Cols, p.Cwd, p.Env, p.Strategy, p.MaxScrollback, r.log)
	if err != nil {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
		close(e.ready)
		return SpawnResult{}, err
	}

	e.tab = t
	close(e.ready)
	return SpawnResult{Tab: t, AlreadyExisted: false}, nil
}

// Get looks up a tab by id, blocking briefly if a concurrent Spawn for
// the same id is still starting its child process.
func (r *Registry) Get(id string) (*Tab, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-e.ready
	return e.tab, e.tab != nil
}

// Remove closes and removes a tab from the registry (explicit ClosePty or
// daemon shutdown). Removal is concurrent-safe with lookups.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	<-e.ready
	if e.tab == nil {
		return nil
	}
	return e.tab.Close()
}

// List returns a snapshot of all registered, fully-started tab ids.
func (r *Registry) List() []string {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		select {
		case <-e.ready:
			if e.tab != nil {
				ids = append(ids, e.tab.ID)
			}
		default:
		}
	}
	return ids
}

// CloseAll closes every registered tab (daemon shutdown path).
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		<-e.ready
		if e.tab != nil {
			e.tab.Close()
		}
	}
}
