// Package daemonsrv is the daemon root and connection handler (§4.4,
// §4.6): the accept loop, signal-driven lifecycle, single-instance lock,
// update poller, and per-connection request/response and push-mode
// dispatch. Adapted from daemon.daemon.go's Run (socket-dir setup,
// write-with-timeout, single-instance enforcement) and
// bridgeservice.acceptLoop/handleConn's accept-then-dispatch shape.
package daemonsrv

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"h2mux/internal/config"
	"h2mux/internal/ptytab"
	"h2mux/internal/statedir"
	"h2mux/internal/version"
)

// ptyWriteTimeout bounds how long a Write to a tab's PTY may block before
// the caller stops waiting and logs the timeout; the write itself keeps
// going in the background (see ptytab.Tab.Write).
const ptyWriteTimeout = 500 * time.Millisecond

// Daemon owns the registry, the listener, and the process-wide state
// described in §4.6 and §9 ("global state"): the signal handler's flags
// live in Run's local loop, not as package statics; the client counter
// and cached latest version are owned fields.
type Daemon struct {
	log      zerolog.Logger
	registry *ptytab.Registry

	cfgMu sync.Mutex
	cfg   config.Config

	clientCount atomic.Int64

	latestMu      sync.Mutex
	latestVersion *string

	lock *flock.Flock
}

// New constructs a daemon ready for Run.
func New(log zerolog.Logger, cfg config.Config) *Daemon {
	return &Daemon{
		log:      log,
		registry: ptytab.NewRegistry(log),
		cfg:      cfg,
	}
}

func (d *Daemon) config() config.Config {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	return d.cfg
}

func (d *Daemon) setConfig(c config.Config) {
	d.cfgMu.Lock()
	d.cfg = c
	d.cfgMu.Unlock()
}

// Run acquires the single-instance lock, binds the socket, and serves
// until ctx is cancelled or a terminating signal arrives. It always
// cleans up the socket, pid file, and lock file before returning.
func (d *Daemon) Run(ctx context.Context) error {
	if err := statedir.Ensure(); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	d.lock = flock.New(statedir.LockPath())
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("h2mux daemon already running")
	}
	defer func() {
		d.lock.Unlock()
		os.Remove(statedir.LockPath())
	}()

	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(statedir.PIDPath(), []byte(pid), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(statedir.PIDPath())

	// A stale socket can only exist if the previous owner crashed without
	// cleanup; the lock above already proves no live daemon holds it.
	os.Remove(statedir.SocketPath())

	ln, err := net.Listen("unix", statedir.SocketPath())
	if err != nil {
		return fmt.Errorf("listen on daemon socket: %w", err)
	}
	if err := os.Chmod(statedir.SocketPath(), 0o700); err != nil {
		ln.Close()
		return fmt.Errorf("chmod daemon socket: %w", err)
	}
	defer func() {
		ln.Close()
		os.Remove(statedir.SocketPath())
	}()

	connCtx, cancelConns := context.WithCancel(ctx)
	defer cancelConns()

	go d.acceptLoop(connCtx, ln)
	go d.updateLoop(connCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	d.log.Info().Str("socket", statedir.SocketPath()).Str("version", version.DisplayVersion()).Msg("daemon started")

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				d.reloadConfig()
			default:
				d.log.Info().Str("signal", sig.String()).Msg("shutting down")
				d.shutdown()
				return nil
			}
		}
	}
}

func (d *Daemon) shutdown() {
	d.registry.CloseAll()
}

func (d *Daemon) reloadConfig() {
	cfg, err := config.Load()
	if err != nil {
		d.log.Warn().Err(err).Msg("config reload failed, keeping previous config")
		return
	}
	d.setConfig(cfg)
	d.log.Info().Msg("config reloaded")
}

// acceptLoop accepts connections until the listener is closed, spawning a
// handler goroutine per connection (grounded on bridgeservice's
// acceptLoop/handleConn pair).
func (d *Daemon) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		d.clientCount.Add(1)
		go func() {
			defer d.clientCount.Add(-1)
			d.handleConn(ctx, conn)
		}()
	}
}

func (d *Daemon) shell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}
