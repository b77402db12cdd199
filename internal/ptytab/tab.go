// Package ptytab owns the daemon-side PTY tab: the child process, its PTY
// master, the reader loop that drives the passthrough splitter into the
// terminal emulator, and the output notifier that wakes push-mode
// subscribers. Adapted from virtualterminal.VT's StartPTY/PipeOutput/
// WritePTY/Resize/IsIdle, generalized from a single attached overlay to a
// daemon tab with many concurrent subscribers.
package ptytab

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog"

	"h2mux/internal/passthrough"
	"h2mux/internal/termemu"
)

// ErrPTYWriteTimeout is returned by Write when the child is not draining
// its PTY input fast enough for the write to complete within the deadline.
var ErrPTYWriteTimeout = fmt.Errorf("pty write timed out")

// Tab owns one PTY master, one child process, and the emulator the
// reader thread feeds. emulator access is always through mu.
type Tab struct {
	ID string

	mu       sync.Mutex
	emulator termemu.Emulator

	ptm *os.File
	cmd *exec.Cmd

	rows, cols int
	strategy   termemu.ResizeStrategy

	lastOutput time.Time
	cwd        *string

	pendingGraphics [][]byte

	closed bool

	notifyMu sync.Mutex
	notifyCh chan struct{}

	log zerolog.Logger
}

// Spawn starts the child process inside a new PTY and begins the reader
// loop. Registry.Spawn reserves the id before calling Spawn, per the
// insert-before-fork ordering in §4.3.
func Spawn(id string, command string, args []string, rows, cols int, cwd string, extraEnv map[string]string, strategy termemu.ResizeStrategy, maxScrollback int, log zerolog.Logger) (*Tab, error) {
	t := &Tab{
		ID:       id,
		emulator: termemu.New(rows, cols, maxScrollback, strategy),
		rows:     rows,
		cols:     cols,
		strategy: strategy,
		notifyCh: make(chan struct{}),
		log:      log.With().Str("tab_id", id).Logger(),
	}

	t.cmd = exec.Command(command, args...)
	if cwd != "" {
		t.cmd.Dir = cwd
	}
	if len(extraEnv) > 0 {
		env := make([]string, 0, len(os.Environ())+len(extraEnv))
		for _, e := range os.Environ() {
			key := e
			if idx := strings.Index(e, "="); idx >= 0 {
				key = e[:idx]
			}
			if _, override := extraEnv[key]; !override {
				env = append(env, e)
			}
		}
		for k, v := range extraEnv {
			env = append(env, k+"="+v)
		}
		t.cmd.Env = env
	}

	ptm, err := pty.StartWithSize(t.cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}
	t.ptm = ptm

	go t.readLoop()
	return t, nil
}

// readLoop is the tab's sole writer to the emulator (§3 invariant). It
// runs until the PTY master is closed (Close) or read returns EOF/error.
func (t *Tab) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := t.ptm.Read(buf)
		if n > 0 {
			r := passthrough.Split(buf[:n])

			t.mu.Lock()
			t.emulator.Ingest(r.Normal)
			t.lastOutput = time.Now()
			if len(r.APC) > 0 {
				t.pendingGraphics = append(t.pendingGraphics, r.APC...)
			}
			if len(r.OSC7Paths) > 0 {
				last := r.OSC7Paths[len(r.OSC7Paths)-1]
				t.cwd = &last
			}
			t.mu.Unlock()

			t.notifyOutput()
		}
		if err != nil {
			t.log.Debug().Err(err).Msg("pty reader exiting")
			return
		}
	}
}

// notifyOutput wakes anything blocked in WaitForOutput by closing and
// replacing the notify channel (broadcast-once-per-wakeup).
func (t *Tab) notifyOutput() {
	t.notifyMu.Lock()
	ch := t.notifyCh
	t.notifyCh = make(chan struct{})
	t.notifyMu.Unlock()
	close(ch)
}

// WaitForOutput blocks until new output has arrived since the call, or the
// given channel is closed (caller's cancellation / connection teardown).
func (t *Tab) WaitForOutput(cancel <-chan struct{}) {
	t.notifyMu.Lock()
	ch := t.notifyCh
	t.notifyMu.Unlock()
	select {
	case <-ch:
	case <-cancel:
	}
}

// Snapshot returns the emulator's current screen at (rows, cols), and the
// tab's cached cwd (latest OSC 7 seen by the reader).
func (t *Tab) Snapshot(rows, cols int) (termemu.Screen, *string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.emulator.Snapshot(rows, cols)
	return s, t.cwd
}

// DrainGraphics removes and returns all pending APC frames accumulated
// since the last drain.
func (t *Tab) DrainGraphics() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.pendingGraphics
	t.pendingGraphics = nil
	return g
}

// InputModes reports the emulator's current mouse/bracketed-paste modes.
func (t *Tab) InputModes() termemu.InputModes {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.emulator.InputModes()
}

// Scroll adjusts the emulator's scrollback offset.
func (t *Tab) Scroll(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emulator.Scroll(delta)
}

// Resize applies the configured resize strategy to the emulator and, for
// Sync strategy, to the PTY's own winsize.
func (t *Tab) Resize(rows, cols int) {
	t.mu.Lock()
	t.rows, t.cols = rows, cols
	t.emulator.Resize(rows, cols)
	t.mu.Unlock()

	if t.strategy == termemu.ResizeSync {
		pty.Setsize(t.ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	}
}

// Write sends bytes to the child's stdin with a timeout. If the child
// isn't reading, the kernel PTY buffer fills and Write would block
// indefinitely without the timeout; the write continues in the background
// after the caller gives up (mirrors VT.WritePTY).
func (t *Tab) Write(p []byte, timeout time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.ptm.Write(p)
		ch <- result{n, err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-timer.C:
		return 0, ErrPTYWriteTimeout
	}
}

// IsIdle reports whether the child has produced no output for at least
// the given threshold.
func (t *Tab) IsIdle(threshold time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.lastOutput.IsZero() && time.Since(t.lastOutput) > threshold
}

// SecondsSinceOutput reports how long it has been since the reader
// thread last ingested any bytes, for idle-status queries (§5).
func (t *Tab) SecondsSinceOutput() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastOutput.IsZero() {
		return 0
	}
	return time.Since(t.lastOutput).Seconds()
}

// ProcessAlive reports whether the child process has not yet exited.
func (t *Tab) ProcessAlive() bool {
	return t.cmd.ProcessState == nil
}

// PID returns the child process id, or 0 if the child hasn't started.
func (t *Tab) PID() int {
	if t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Close closes the PTY master, which delivers EOF to the reader loop and
// SIGHUP to the child via controlling-tty semantics. The child is reaped
// in a background goroutine; Close does not wait for it to exit.
func (t *Tab) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.ptm.Close()
	if t.cmd.Process != nil {
		go t.cmd.Wait()
	}
	return err
}
