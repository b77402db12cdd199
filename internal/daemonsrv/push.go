package daemonsrv

import (
	"context"
	"net"
	"time"

	"h2mux/internal/protocol"
	"h2mux/internal/ptytab"
	"h2mux/internal/termemu"
)

const (
	pushBackstop       = 200 * time.Millisecond
	coalesceFirstWait  = 500 * time.Microsecond
	coalesceBatchSleep = time.Millisecond
)

// handlePushMode implements the subscription transport (§4.4): the
// handler immediately sends a baseline Screen, then loops over the tab's
// output notifier, incoming client frames, and a 200ms backstop timer
// until the connection breaks. Grounded on §9's "single-task select with
// no internal threads" guidance, adapted to Go with one reader goroutine
// feeding a channel (net.Conn has no non-blocking peek) and one goroutine
// translating the tab's blocking WaitForOutput into a channel send.
func (d *Daemon) handlePushMode(ctx context.Context, conn net.Conn, r *protocol.Reader, sub protocol.Subscribe) {
	tab, ok := d.registry.Get(sub.TabID)
	if !ok {
		if err := protocol.WriteJSONLine(conn, protocol.Envelope{Kind: protocol.KindError, Error: &protocol.ErrorMsg{Message: protocol.ErrTabNotFound}}); err != nil {
			d.log.Debug().Err(err).Msg("write not-found error failed")
		}
		return
	}

	subRows, subCols := sub.Rows, sub.Cols
	strategy := d.config().EmulatorResizeStrategy()

	screen, cwd := tab.Snapshot(subRows, subCols)
	screen.Cwd = cwd
	if err := protocol.WriteBinary(conn, protocol.Envelope{Kind: protocol.KindScreen, Screen: &protocol.ScreenMsg{TabID: sub.TabID, Content: screen}}); err != nil {
		return
	}
	lastSent := screen
	haveSent := true

	done := make(chan struct{})
	defer close(done)

	outputCh := make(chan struct{}, 1)
	go func() {
		for {
			tab.WaitForOutput(done)
			select {
			case <-done:
				return
			default:
			}
			select {
			case outputCh <- struct{}{}:
			default:
			}
		}
	}()

	inputCh := make(chan protocol.Envelope)
	errCh := make(chan error, 1)
	go func() {
		for {
			env, err := r.ReadEnvelope()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case inputCh <- env:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(pushBackstop)
	defer ticker.Stop()

	skipCoalesce := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-errCh:
			return

		case env := <-inputCh:
			switch env.Kind {
			case protocol.KindResize:
				if env.Resize != nil {
					subRows, subCols = env.Resize.Rows, env.Resize.Cols
					haveSent = false
					if strategy == termemu.ResizeSync {
						tab.Resize(subRows, subCols)
					}
				}
			case protocol.KindSubscribe:
				if env.Subscribe != nil {
					subRows, subCols = env.Subscribe.Rows, env.Subscribe.Cols
					haveSent = false
				}
			case protocol.KindInput:
				if env.Input != nil {
					d.writeToTab(env.Input.TabID, env.Input.Data)
					skipCoalesce = true
				}
			case protocol.KindPaste:
				if env.Paste != nil {
					d.writePaste(env.Paste.TabID, env.Paste.Data)
					skipCoalesce = true
				}
			case protocol.KindClosePty:
				d.registry.Remove(sub.TabID)
				return
			default:
				d.log.Debug().Str("kind", string(env.Kind)).Msg("unhandled push-mode frame")
			}

		case <-outputCh:
			if !skipCoalesce {
				select {
				case <-outputCh:
					time.Sleep(coalesceBatchSleep)
				case <-time.After(coalesceFirstWait):
				}
			}
			skipCoalesce = false
			if err := d.pushUpdate(conn, tab, sub.TabID, subRows, subCols, &lastSent, &haveSent); err != nil {
				return
			}

		case <-ticker.C:
			if err := d.pushUpdate(conn, tab, sub.TabID, subRows, subCols, &lastSent, &haveSent); err != nil {
				return
			}
		}
	}
}

// pushUpdate snapshots the tab, diffs against lastSent, and sends either
// nothing (unchanged), a ScreenDiff, or a full Screen (§4.4). It also
// flushes any pending graphics frames accumulated since the last push.
func (d *Daemon) pushUpdate(conn net.Conn, tab *ptytab.Tab, tabID string, rows, cols int, lastSent *termemu.Screen, haveSent *bool) error {
	screen, cwd := tab.Snapshot(rows, cols)
	screen.Cwd = cwd

	if g := tab.DrainGraphics(); len(g) > 0 {
		if err := protocol.WriteBinary(conn, protocol.Envelope{Kind: protocol.KindGraphics, Graphics: &protocol.GraphicsMsg{TabID: tabID, Payloads: g}}); err != nil {
			return err
		}
	}

	if !*haveSent {
		if err := protocol.WriteBinary(conn, protocol.Envelope{Kind: protocol.KindScreen, Screen: &protocol.ScreenMsg{TabID: tabID, Content: screen}}); err != nil {
			return err
		}
		*lastSent = screen
		*haveSent = true
		return nil
	}

	diff := protocol.ComputeDiff(tabID, *lastSent, screen)
	if diff.Unchanged {
		return nil
	}
	if diff.FullScreen {
		if err := protocol.WriteBinary(conn, protocol.Envelope{Kind: protocol.KindScreen, Screen: &protocol.ScreenMsg{TabID: tabID, Content: screen}}); err != nil {
			return err
		}
	} else {
		if err := protocol.WriteBinary(conn, protocol.Envelope{Kind: protocol.KindScreenDiff, ScreenDiff: &diff.Diff}); err != nil {
			return err
		}
	}
	*lastSent = screen
	return nil
}
