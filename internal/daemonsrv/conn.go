package daemonsrv

import (
	"context"
	"errors"
	"io"
	"net"

	"h2mux/internal/protocol"
	"h2mux/internal/ptytab"
	"h2mux/internal/version"
)

const (
	bracketedPasteStart = "\x1b[200~"
	bracketedPasteEnd   = "\x1b[201~"
)

// handleConn serves one connection in request/response mode until either
// the peer switches it into push mode (Subscribe) or disconnects.
// Any read or decode error ends the connection: a malformed frame is not
// skipped, in request/response mode or in push mode.
func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	r := protocol.NewReader(conn)
	lastHash := make(map[string]uint64)

	for {
		env, err := r.ReadEnvelope()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.log.Debug().Err(err).Msg("connection read failed")
			}
			return
		}

		switch env.Kind {
		case protocol.KindHello:
			d.reply(conn, protocol.Envelope{Kind: protocol.KindWelcome, Welcome: &protocol.Welcome{Version: version.DisplayVersion()}})

		case protocol.KindSpawn:
			if env.Spawn == nil {
				continue
			}
			d.handleSpawn(conn, *env.Spawn)

		case protocol.KindInput:
			if env.Input == nil {
				continue
			}
			d.writeToTab(env.Input.TabID, env.Input.Data)

		case protocol.KindPaste:
			if env.Paste == nil {
				continue
			}
			d.writePaste(env.Paste.TabID, env.Paste.Data)

		case protocol.KindResize:
			if env.Resize == nil {
				continue
			}
			if tab, ok := d.registry.Get(env.Resize.TabID); ok {
				tab.Resize(env.Resize.Rows, env.Resize.Cols)
			}

		case protocol.KindScroll:
			if env.Scroll == nil {
				continue
			}
			if tab, ok := d.registry.Get(env.Scroll.TabID); ok {
				tab.Scroll(env.Scroll.Delta)
			}

		case protocol.KindClosePty:
			if env.ClosePty == nil {
				continue
			}
			d.registry.Remove(env.ClosePty.TabID)

		case protocol.KindGetScreen:
			if env.GetScreen == nil {
				continue
			}
			d.handleGetScreen(conn, *env.GetScreen, lastHash)

		case protocol.KindGetInputModes:
			if env.GetInputModes == nil {
				continue
			}
			d.handleGetInputModes(conn, env.GetInputModes.TabID)

		case protocol.KindGetIdleStatus:
			d.handleGetIdleStatus(conn)

		case protocol.KindGetProcStatus:
			d.handleGetProcessStatus(conn)

		case protocol.KindGetUpdateStatus:
			d.reply(conn, protocol.Envelope{Kind: protocol.KindUpdateStatus, UpdateStatus: &protocol.UpdateStatusMsg{Latest: d.getLatestVersion()}})

		case protocol.KindSubscribe:
			if env.Subscribe == nil {
				continue
			}
			d.handlePushMode(ctx, conn, r, *env.Subscribe)
			return

		default:
			d.log.Debug().Str("kind", string(env.Kind)).Msg("unhandled message kind")
		}
	}
}

func (d *Daemon) reply(conn net.Conn, env protocol.Envelope) {
	if err := protocol.WriteJSONLine(conn, env); err != nil {
		d.log.Debug().Err(err).Msg("write reply failed")
	}
}

func (d *Daemon) replyBinary(conn net.Conn, env protocol.Envelope) error {
	return protocol.WriteBinary(conn, env)
}

func (d *Daemon) writeToTab(tabID string, data []byte) {
	tab, ok := d.registry.Get(tabID)
	if !ok {
		return
	}
	if _, err := tab.Write(data, ptyWriteTimeout); err != nil {
		d.log.Debug().Err(err).Str("tab_id", tabID).Msg("input write failed")
	}
}

// writePaste wraps the pasted text in bracketed-paste markers when the
// tab's emulator has that DEC private mode enabled (§9 open question:
// Paste vs Input distinction preserved so the wrap can happen here).
func (d *Daemon) writePaste(tabID, data string) {
	tab, ok := d.registry.Get(tabID)
	if !ok {
		return
	}
	payload := data
	if tab.InputModes().BracketedPaste {
		payload = bracketedPasteStart + data + bracketedPasteEnd
	}
	if _, err := tab.Write([]byte(payload), ptyWriteTimeout); err != nil {
		d.log.Debug().Err(err).Str("tab_id", tabID).Msg("paste write failed")
	}
}

func (d *Daemon) handleSpawn(conn net.Conn, req protocol.Spawn) {
	shell := req.Shell
	if shell == "" {
		shell = d.shell()
	}
	cfg := d.config()

	result, err := d.registry.Spawn(req.TabID, ptytab.SpawnParams{
		Command:       shell,
		Rows:          req.Rows,
		Cols:          req.Cols,
		Cwd:           req.Cwd,
		Env:           req.Env,
		Strategy:      cfg.EmulatorResizeStrategy(),
		MaxScrollback: cfg.MaxScrollbackLines,
	})
	if err != nil {
		d.reply(conn, protocol.Envelope{Kind: protocol.KindError, Error: &protocol.ErrorMsg{Message: err.Error()}})
		return
	}

	v := version.DisplayVersion()
	if result.AlreadyExisted {
		v = "already exists"
	}
	d.reply(conn, protocol.Envelope{Kind: protocol.KindWelcome, Welcome: &protocol.Welcome{Version: v}})
}

func (d *Daemon) handleGetScreen(conn net.Conn, req protocol.GetScreen, lastHash map[string]uint64) {
	tab, ok := d.registry.Get(req.TabID)
	if !ok {
		d.reply(conn, protocol.Envelope{Kind: protocol.KindError, Error: &protocol.ErrorMsg{Message: protocol.ErrTabNotFound}})
		return
	}

	screen, cwd := tab.Snapshot(req.Rows, req.Cols)
	screen.Cwd = cwd
	msg := protocol.ScreenMsg{TabID: req.TabID, Content: screen}

	hash, err := protocol.ScreenHash(msg)
	if err == nil && lastHash[req.TabID] == hash {
		d.reply(conn, protocol.Envelope{Kind: protocol.KindScreenUnchanged})
		return
	}
	if err == nil {
		lastHash[req.TabID] = hash
	}

	if werr := d.replyBinary(conn, protocol.Envelope{Kind: protocol.KindScreen, Screen: &msg}); werr != nil {
		d.log.Debug().Err(werr).Msg("write screen failed")
	}
}

func (d *Daemon) handleGetInputModes(conn net.Conn, tabID string) {
	tab, ok := d.registry.Get(tabID)
	if !ok {
		d.reply(conn, protocol.Envelope{Kind: protocol.KindError, Error: &protocol.ErrorMsg{Message: protocol.ErrTabNotFound}})
		return
	}
	m := tab.InputModes()
	d.reply(conn, protocol.Envelope{Kind: protocol.KindInputModes, InputModes: &protocol.InputModesMsg{Mouse: m.Mouse, BracketedPaste: m.BracketedPaste}})
}

func (d *Daemon) handleGetIdleStatus(conn net.Conn) {
	var tabs []protocol.IdleTabStatus
	for _, id := range d.registry.List() {
		tab, ok := d.registry.Get(id)
		if !ok {
			continue
		}
		tabs = append(tabs, protocol.IdleTabStatus{TabID: id, SecondsSinceOut: tab.SecondsSinceOutput()})
	}
	d.reply(conn, protocol.Envelope{Kind: protocol.KindIdleStatus, IdleStatus: &protocol.IdleStatusMsg{Tabs: tabs}})
}

func (d *Daemon) handleGetProcessStatus(conn net.Conn) {
	var tabs []protocol.ProcessTabStatus
	for _, id := range d.registry.List() {
		tab, ok := d.registry.Get(id)
		if !ok {
			continue
		}
		tabs = append(tabs, protocol.ProcessTabStatus{TabID: id, PID: tab.PID()})
	}
	d.reply(conn, protocol.Envelope{Kind: protocol.KindProcessStatus, ProcessStatus: &protocol.ProcessStatusMsg{Tabs: tabs}})
}
