package tabclient

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"h2mux/internal/protocol"
)

const (
	// subscriptionIdleDrop is how long without a get_screen call before
	// the worker drops its subscription connection but stays alive
	// (§4.5 step 1).
	subscriptionIdleDrop = 2 * time.Second
	// workerIdleStop is how long without a get_screen call before the
	// worker goroutine exits entirely; the next get_screen restarts it.
	workerIdleStop = 30 * time.Second

	pollTimeout    = 2 * time.Millisecond
	pollIdleSleep  = 200 * time.Microsecond
	reconnectDelay = 100 * time.Millisecond

	notFoundLogInterval = 2 * time.Second
)

// worker is the per-tab screen worker (W): one goroutine holding the
// subscription connection, forwarding queued input/paste frames on it,
// and applying pushed Screen/ScreenDiff/Graphics frames into cache.
// Grounded on catnip's SSEClient.connect loop (dedicated goroutine,
// stop channel, reconnect-with-delay) adapted from an HTTP SSE stream to
// a Unix-socket subscription, and on §4.5's explicit step list.
type worker struct {
	tabID    string
	sockPath string
	log      zerolog.Logger
	cache    *cache

	outCh chan protocol.Envelope

	sizeMu        sync.Mutex
	reqRows       int
	reqCols       int
	lastActivity  time.Time

	startMu sync.Mutex
	running bool
	stopCh  chan struct{}

	live atomic.Bool // set while the run() goroutine holds a subscription conn

	// conn/reader/subRows/subCols/lastNotFoundWarn are owned exclusively
	// by the run() goroutine; no lock needed.
	conn             net.Conn
	reader           *protocol.Reader
	subRows, subCols int
	lastNotFoundWarn time.Time
}

func newWorker(tabID, sockPath string, log zerolog.Logger, c *cache) *worker {
	return &worker{
		tabID:    tabID,
		sockPath: sockPath,
		log:      log,
		cache:    c,
		outCh:    make(chan protocol.Envelope, 256),
	}
}

func (w *worker) setSize(rows, cols int) {
	w.sizeMu.Lock()
	w.reqRows, w.reqCols = rows, cols
	w.sizeMu.Unlock()
}

func (w *worker) touchActivity() {
	w.sizeMu.Lock()
	w.lastActivity = time.Now()
	w.sizeMu.Unlock()
}

func (w *worker) requestedSize() (int, int) {
	w.sizeMu.Lock()
	defer w.sizeMu.Unlock()
	return w.reqRows, w.reqCols
}

func (w *worker) idleFor() time.Duration {
	w.sizeMu.Lock()
	last := w.lastActivity
	w.sizeMu.Unlock()
	if last.IsZero() {
		return 0
	}
	return time.Since(last)
}

// ensureRunning starts the worker goroutine if it isn't already active.
func (w *worker) ensureRunning() {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	go w.run(w.stopCh)
}

// connected reports whether the worker currently has a live subscription
// connection the provider can piggyback writes on.
func (w *worker) connected() bool {
	return w.live.Load()
}

// trySend enqueues env on the subscription socket's outgoing channel. It
// returns false if the worker has no subscription connection, so the caller can fall back
// to the persistent write connection (§4.5).
func (w *worker) trySend(env protocol.Envelope) bool {
	if !w.connected() {
		return false
	}
	select {
	case w.outCh <- env:
		return true
	default:
		return false
	}
}

func (w *worker) run(stopCh chan struct{}) {
	defer func() {
		w.closeConn()
		w.startMu.Lock()
		w.running = false
		w.startMu.Unlock()
	}()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		idle := w.idleFor()
		if idle > workerIdleStop {
			return
		}
		if idle > subscriptionIdleDrop {
			w.closeConn()
			time.Sleep(reconnectDelay)
			continue
		}

		if w.conn == nil {
			if err := w.connect(); err != nil {
				w.log.Debug().Err(err).Str("tab_id", w.tabID).Msg("subscription connect failed")
				time.Sleep(reconnectDelay)
				continue
			}
		}

		reqRows, reqCols := w.requestedSize()
		if reqRows != w.subRows || reqCols != w.subCols {
			if err := w.sendResize(reqRows, reqCols); err != nil {
				w.closeConn()
				continue
			}
		}

		if err := w.drainOutgoing(); err != nil {
			w.closeConn()
			continue
		}

		env, ok, err := w.pollOnce()
		if err != nil {
			w.closeConn()
			time.Sleep(reconnectDelay)
			continue
		}
		if !ok {
			time.Sleep(pollIdleSleep)
			continue
		}
		w.handleFrame(env)
	}
}

func (w *worker) connect() error {
	conn, err := net.Dial("unix", w.sockPath)
	if err != nil {
		return err
	}
	rows, cols := w.requestedSize()
	sub := protocol.Envelope{Kind: protocol.KindSubscribe, Subscribe: &protocol.Subscribe{TabID: w.tabID, Rows: rows, Cols: cols}}
	if err := protocol.WriteJSONLine(conn, sub); err != nil {
		conn.Close()
		return err
	}
	w.conn = conn
	w.reader = protocol.NewReader(conn)
	w.subRows, w.subCols = rows, cols
	w.live.Store(true)
	return nil
}

func (w *worker) sendResize(rows, cols int) error {
	env := protocol.Envelope{Kind: protocol.KindResize, Resize: &protocol.Resize{TabID: w.tabID, Rows: rows, Cols: cols}}
	if err := protocol.WriteJSONLine(w.conn, env); err != nil {
		return err
	}
	w.subRows, w.subCols = rows, cols
	w.cache.invalidate()
	return nil
}

func (w *worker) drainOutgoing() error {
	for {
		select {
		case env := <-w.outCh:
			if err := protocol.WriteJSONLine(w.conn, env); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (w *worker) pollOnce() (protocol.Envelope, bool, error) {
	w.conn.SetReadDeadline(time.Now().Add(pollTimeout))
	env, err := w.reader.ReadEnvelope()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return protocol.Envelope{}, false, nil
		}
		return protocol.Envelope{}, false, err
	}
	return env, true, nil
}

func (w *worker) handleFrame(env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindScreen:
		if env.Screen == nil {
			return
		}
		w.cache.replace(w.subRows, w.subCols, env.Screen.Content, env.Screen.Content.Cwd)

	case protocol.KindScreenDiff:
		if env.ScreenDiff == nil {
			return
		}
		w.cache.applyDiff(*env.ScreenDiff)

	case protocol.KindGraphics:
		if env.Graphics == nil {
			return
		}
		w.cache.addGraphics(env.Graphics.Payloads)

	case protocol.KindError:
		if env.Error != nil && env.Error.Message == protocol.ErrTabNotFound {
			if time.Since(w.lastNotFoundWarn) > notFoundLogInterval {
				w.log.Warn().Str("tab_id", w.tabID).Msg("subscribe: tab not found")
				w.lastNotFoundWarn = time.Now()
			}
			w.closeConn()
			time.Sleep(reconnectDelay)
		}

	default:
		w.log.Debug().Str("kind", string(env.Kind)).Msg("unhandled push frame")
	}
}

func (w *worker) closeConn() {
	if w.conn != nil {
		w.live.Store(false)
		w.conn.Close()
		w.conn = nil
		w.reader = nil
	}
}
