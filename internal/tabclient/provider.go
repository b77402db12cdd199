package tabclient

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"h2mux/internal/protocol"
	"h2mux/internal/statedir"
	"h2mux/internal/termemu"
)

// oneShotTimeout bounds every synchronous client<->daemon round trip so
// a stuck daemon can't wedge the UI draw (§5).
const oneShotTimeout = 300 * time.Millisecond

// Provider is the per-tab object the UI uses (C): spawn, resize, write,
// paste, get_screen, scroll, generation. It owns the background screen
// worker and a lazily-opened persistent write connection used as the
// fallback path for fire-and-forget sends (§4.5).
type Provider struct {
	tabID    string
	sockPath string
	log      zerolog.Logger

	cache  *cache
	worker *worker

	writeMu   sync.Mutex
	writeConn net.Conn

	spawnMu    sync.Mutex
	lastSpawn  *protocol.Spawn
	hasSpawned bool
}

// New constructs a provider for one tab. Nothing is dialed until Spawn
// or GetScreen is called.
func New(tabID string, log zerolog.Logger) *Provider {
	c := &cache{}
	return &Provider{
		tabID:    tabID,
		sockPath: statedir.SocketPath(),
		log:      log,
		cache:    c,
		worker:   newWorker(tabID, statedir.SocketPath(), log, c),
	}
}

// Spawn sends Spawn over a one-shot connection and waits for the welcome
// before returning, then starts the worker if it isn't running. The
// two-phase order matters: starting the worker before the daemon has
// created the tab would race its first Subscribe into "tab not found".
func (p *Provider) Spawn(rows, cols int, cwd, shell string, env map[string]string) error {
	p.spawnMu.Lock()
	defer p.spawnMu.Unlock()

	req := protocol.Spawn{TabID: p.tabID, Rows: rows, Cols: cols, Cwd: cwd, Shell: shell, Env: env}
	if err := p.doSpawn(req); err != nil {
		return err
	}
	p.lastSpawn = &req
	p.hasSpawned = true

	p.worker.setSize(rows, cols)
	p.worker.touchActivity()
	p.worker.ensureRunning()
	return nil
}

func (p *Provider) doSpawn(req protocol.Spawn) error {
	conn, err := net.Dial("unix", p.sockPath)
	if err != nil {
		return fmt.Errorf("dial daemon: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(oneShotTimeout))

	if err := protocol.WriteJSONLine(conn, protocol.Envelope{Kind: protocol.KindSpawn, Spawn: &req}); err != nil {
		return err
	}
	resp, err := protocol.NewReader(conn).ReadEnvelope()
	if err != nil {
		return err
	}
	if resp.Kind == protocol.KindError && resp.Error != nil {
		return fmt.Errorf("spawn %s: %s", p.tabID, resp.Error.Message)
	}
	return nil
}

// Resize updates the requested size, invalidates the cache, and sends a
// fire-and-forget Resize on the persistent write connection.
func (p *Provider) Resize(rows, cols int) {
	p.worker.setSize(rows, cols)
	p.cache.invalidate()
	p.sendFireAndForget(protocol.Envelope{Kind: protocol.KindResize, Resize: &protocol.Resize{TabID: p.tabID, Rows: rows, Cols: cols}})
}

// Write forwards raw input bytes, preferring the subscription socket for
// lowest echo latency, falling back to the persistent write connection.
func (p *Provider) Write(data []byte) {
	env := protocol.Envelope{Kind: protocol.KindInput, Input: &protocol.Input{TabID: p.tabID, Data: data}}
	if p.worker.trySend(env) {
		return
	}
	p.sendFireAndForget(env)
}

// Paste wraps text as a Paste message, same channel preference as Write.
func (p *Provider) Paste(text string) {
	env := protocol.Envelope{Kind: protocol.KindPaste, Paste: &protocol.Paste{TabID: p.tabID, Data: text}}
	if p.worker.trySend(env) {
		return
	}
	p.sendFireAndForget(env)
}

// GetScreen returns the cached screen if valid for (rows, cols), else
// fetches synchronously so the first frame is never blank. A "tab not
// found" reply triggers one synchronous Spawn-and-retry using the
// parameters from the last Spawn call.
func (p *Provider) GetScreen(rows, cols int) (termemu.Screen, error) {
	p.worker.setSize(rows, cols)
	p.worker.touchActivity()
	p.worker.ensureRunning()

	if s, ok := p.cache.get(rows, cols); ok {
		return s, nil
	}

	screen, err := p.fetchScreen(rows, cols)
	if err == errTabNotFound {
		if respawnErr := p.respawn(rows, cols); respawnErr != nil {
			return termemu.Screen{}, respawnErr
		}
		screen, err = p.fetchScreen(rows, cols)
	}
	if err != nil {
		return termemu.Screen{}, err
	}

	p.cache.replace(rows, cols, screen, screen.Cwd)
	return screen, nil
}

// Scroll sends a fire-and-forget Scroll then synchronously fetches one
// Screen so a copy-mode cursor update is visible immediately.
func (p *Provider) Scroll(delta int) (termemu.Screen, error) {
	p.sendFireAndForget(protocol.Envelope{Kind: protocol.KindScroll, Scroll: &protocol.Scroll{TabID: p.tabID, Delta: delta}})

	rows, cols := p.worker.requestedSize()
	screen, err := p.fetchScreen(rows, cols)
	if err != nil {
		return termemu.Screen{}, err
	}
	p.cache.replace(rows, cols, screen, screen.Cwd)
	return screen, nil
}

// Generation is a monotonic counter the UI can poll to detect updates
// without comparing screens.
func (p *Provider) Generation() uint64 {
	return p.cache.gen()
}

// DrainGraphics returns and clears pending graphics payloads pushed
// since the last call.
func (p *Provider) DrainGraphics() [][]byte {
	return p.cache.drainGraphics()
}

var errTabNotFound = fmt.Errorf("tab not found")

func (p *Provider) fetchScreen(rows, cols int) (termemu.Screen, error) {
	conn, err := net.Dial("unix", p.sockPath)
	if err != nil {
		return termemu.Screen{}, fmt.Errorf("dial daemon: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(oneShotTimeout))

	req := protocol.Envelope{Kind: protocol.KindGetScreen, GetScreen: &protocol.GetScreen{TabID: p.tabID, Rows: rows, Cols: cols}}
	if err := protocol.WriteJSONLine(conn, req); err != nil {
		return termemu.Screen{}, err
	}
	resp, err := protocol.NewReader(conn).ReadEnvelope()
	if err != nil {
		return termemu.Screen{}, err
	}
	switch resp.Kind {
	case protocol.KindScreen:
		if resp.Screen == nil {
			return termemu.Screen{}, fmt.Errorf("get_screen: empty screen reply")
		}
		return resp.Screen.Content, nil
	case protocol.KindScreenUnchanged:
		if s, ok := p.cache.get(rows, cols); ok {
			return s, nil
		}
		return termemu.Screen{}, fmt.Errorf("get_screen: unchanged reply with no cached screen")
	case protocol.KindError:
		if resp.Error != nil && resp.Error.Message == protocol.ErrTabNotFound {
			return termemu.Screen{}, errTabNotFound
		}
		msg := "unknown error"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return termemu.Screen{}, fmt.Errorf("get_screen: %s", msg)
	default:
		return termemu.Screen{}, fmt.Errorf("get_screen: unexpected reply kind %q", resp.Kind)
	}
}

// respawn replays the last Spawn call's parameters (§4.5's "synchronously
// Spawn and retry" path). This is the provider's job exclusively; the
// worker must never spawn on its own.
func (p *Provider) respawn(rows, cols int) error {
	p.spawnMu.Lock()
	req := protocol.Spawn{TabID: p.tabID, Rows: rows, Cols: cols}
	if p.lastSpawn != nil {
		req.Cwd = p.lastSpawn.Cwd
		req.Shell = p.lastSpawn.Shell
		req.Env = p.lastSpawn.Env
	}
	p.spawnMu.Unlock()
	return p.doSpawn(req)
}

// sendFireAndForget writes env on the lazily-opened persistent write
// connection, reconnecting once on failure before giving up silently
// (fire-and-forget sends have no caller waiting on an error).
func (p *Provider) sendFireAndForget(env protocol.Envelope) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.writeConn == nil {
		conn, err := net.Dial("unix", p.sockPath)
		if err != nil {
			p.log.Debug().Err(err).Str("tab_id", p.tabID).Msg("write connection dial failed")
			return
		}
		p.writeConn = conn
	}

	p.writeConn.SetWriteDeadline(time.Now().Add(oneShotTimeout))
	if err := protocol.WriteJSONLine(p.writeConn, env); err != nil {
		p.writeConn.Close()
		p.writeConn = nil

		conn, derr := net.Dial("unix", p.sockPath)
		if derr != nil {
			p.log.Debug().Err(derr).Str("tab_id", p.tabID).Msg("write connection reconnect failed")
			return
		}
		conn.SetWriteDeadline(time.Now().Add(oneShotTimeout))
		if werr := protocol.WriteJSONLine(conn, env); werr != nil {
			conn.Close()
			p.log.Debug().Err(werr).Str("tab_id", p.tabID).Msg("write after reconnect failed")
			return
		}
		p.writeConn = conn
	}
}

// Close releases the persistent write connection; the worker stops
// itself after its own idle timeout.
func (p *Provider) Close() {
	p.writeMu.Lock()
	if p.writeConn != nil {
		p.writeConn.Close()
		p.writeConn = nil
	}
	p.writeMu.Unlock()
}
