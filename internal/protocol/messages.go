// Package protocol defines the client<->daemon message catalog and the
// dual JSON-line/binary-msgpack framing that carries it over the Unix
// socket. Grounded on session/attach.go's frame-based request/response
// contract (FrameTypeData/FrameTypeControl, ReadFrame/WriteFrame,
// Request/Response/SendResponse) generalized from a single attach
// connection into the full message catalog, and on catnip's
// terminal-state-protocol snapshot/delta message shapes.
package protocol

import "h2mux/internal/termemu"

// Kind discriminates the JSON "type" field and, for binary frames, the
// msgpack envelope's Kind field.
type Kind string

const (
	KindHello          Kind = "hello"
	KindSpawn          Kind = "spawn"
	KindInput          Kind = "input"
	KindPaste          Kind = "paste"
	KindResize         Kind = "resize"
	KindGetScreen      Kind = "get_screen"
	KindSubscribe      Kind = "subscribe"
	KindGetIdleStatus  Kind = "get_idle_status"
	KindGetProcStatus  Kind = "get_process_status"
	KindGetInputModes  Kind = "get_input_modes"
	KindGetUpdateStatus Kind = "get_update_status"
	KindScroll         Kind = "scroll"
	KindClosePty       Kind = "close_pty"

	KindWelcome        Kind = "welcome"
	KindScreen         Kind = "screen"
	KindScreenDiff     Kind = "screen_diff"
	KindScreenUnchanged Kind = "screen_unchanged"
	KindInputModes     Kind = "input_modes"
	KindIdleStatus     Kind = "idle_status"
	KindProcessStatus  Kind = "process_status"
	KindUpdateStatus   Kind = "update_status"
	KindGraphics       Kind = "graphics"
	KindError          Kind = "error"
)

// Envelope is the common wrapper for every message on the wire. Exactly
// one of the typed payload fields is populated per Kind; unused fields
// are omitted from JSON and left zero in msgpack.
type Envelope struct {
	Kind Kind `json:"type" msgpack:"type"`

	Hello         *Hello         `json:"hello,omitempty" msgpack:"hello,omitempty"`
	Spawn         *Spawn         `json:"spawn,omitempty" msgpack:"spawn,omitempty"`
	Input         *Input         `json:"input,omitempty" msgpack:"input,omitempty"`
	Paste         *Paste         `json:"paste,omitempty" msgpack:"paste,omitempty"`
	Resize        *Resize        `json:"resize,omitempty" msgpack:"resize,omitempty"`
	GetScreen     *GetScreen     `json:"get_screen,omitempty" msgpack:"get_screen,omitempty"`
	Subscribe     *Subscribe     `json:"subscribe,omitempty" msgpack:"subscribe,omitempty"`
	GetInputModes *GetInputModes `json:"get_input_modes,omitempty" msgpack:"get_input_modes,omitempty"`
	Scroll        *Scroll        `json:"scroll,omitempty" msgpack:"scroll,omitempty"`
	ClosePty      *ClosePty      `json:"close_pty,omitempty" msgpack:"close_pty,omitempty"`

	Welcome         *Welcome         `json:"welcome,omitempty" msgpack:"welcome,omitempty"`
	Screen          *ScreenMsg       `json:"screen,omitempty" msgpack:"screen,omitempty"`
	ScreenDiff      *ScreenDiffMsg   `json:"screen_diff,omitempty" msgpack:"screen_diff,omitempty"`
	InputModes      *InputModesMsg   `json:"input_modes,omitempty" msgpack:"input_modes,omitempty"`
	IdleStatus      *IdleStatusMsg   `json:"idle_status,omitempty" msgpack:"idle_status,omitempty"`
	ProcessStatus   *ProcessStatusMsg `json:"process_status,omitempty" msgpack:"process_status,omitempty"`
	UpdateStatus    *UpdateStatusMsg `json:"update_status,omitempty" msgpack:"update_status,omitempty"`
	Graphics        *GraphicsMsg     `json:"graphics,omitempty" msgpack:"graphics,omitempty"`
	Error           *ErrorMsg        `json:"error,omitempty" msgpack:"error,omitempty"`
}

// --- Client -> Daemon ---

type Hello struct {
	Version string `json:"version" msgpack:"version"`
}

type Spawn struct {
	TabID string            `json:"tab_id" msgpack:"tab_id"`
	Rows  int               `json:"rows" msgpack:"rows"`
	Cols  int               `json:"cols" msgpack:"cols"`
	Cwd   string            `json:"cwd,omitempty" msgpack:"cwd,omitempty"`
	Shell string            `json:"shell,omitempty" msgpack:"shell,omitempty"`
	Env   map[string]string `json:"env,omitempty" msgpack:"env,omitempty"`
}

type Input struct {
	TabID string `json:"tab_id" msgpack:"tab_id"`
	Data  []byte `json:"data" msgpack:"data"`
}

type Paste struct {
	TabID string `json:"tab_id" msgpack:"tab_id"`
	Data  string `json:"data" msgpack:"data"`
}

type Resize struct {
	TabID string `json:"tab_id" msgpack:"tab_id"`
	Rows  int    `json:"rows" msgpack:"rows"`
	Cols  int    `json:"cols" msgpack:"cols"`
}

type GetScreen struct {
	TabID string `json:"tab_id" msgpack:"tab_id"`
	Rows  int    `json:"rows" msgpack:"rows"`
	Cols  int    `json:"cols" msgpack:"cols"`
}

type Subscribe struct {
	TabID string `json:"tab_id" msgpack:"tab_id"`
	Rows  int    `json:"rows" msgpack:"rows"`
	Cols  int    `json:"cols" msgpack:"cols"`
}

type GetInputModes struct {
	TabID string `json:"tab_id" msgpack:"tab_id"`
}

type Scroll struct {
	TabID string `json:"tab_id" msgpack:"tab_id"`
	Delta int    `json:"delta" msgpack:"delta"`
}

type ClosePty struct {
	TabID string `json:"tab_id" msgpack:"tab_id"`
}

// --- Daemon -> Client ---

type Welcome struct {
	Version string `json:"version" msgpack:"version"`
}

// ScreenMsg carries a full snapshot. Screen's Lines are transmitted as
// termemu.Line directly; msgpack encodes the untagged termemu structs as
// maps keyed by Go field name.
type ScreenMsg struct {
	TabID   string         `json:"tab_id" msgpack:"tab_id"`
	Content termemu.Screen `json:"content" msgpack:"content"`
}

// ChangedLine pairs a row index with its new content (§4.4).
type ChangedLine struct {
	Row  int            `json:"row" msgpack:"row"`
	Line termemu.Line   `json:"line" msgpack:"line"`
}

type ScreenDiffMsg struct {
	TabID              string             `json:"tab_id" msgpack:"tab_id"`
	ChangedLines       []ChangedLine      `json:"changed_lines" msgpack:"changed_lines"`
	CursorRow          int                `json:"cursor_row" msgpack:"cursor_row"`
	CursorCol          int                `json:"cursor_col" msgpack:"cursor_col"`
	CursorShape        termemu.CursorShape `json:"cursor_shape" msgpack:"cursor_shape"`
	Title              *string            `json:"title,omitempty" msgpack:"title,omitempty"`
	Bell               bool               `json:"bell" msgpack:"bell"`
	FocusEventsEnabled bool               `json:"focus_events_enabled" msgpack:"focus_events_enabled"`
}

type InputModesMsg struct {
	Mouse           bool `json:"mouse" msgpack:"mouse"`
	BracketedPaste  bool `json:"bracketed_paste" msgpack:"bracketed_paste"`
}

type IdleTabStatus struct {
	TabID           string  `json:"tab_id" msgpack:"tab_id"`
	SecondsSinceOut float64 `json:"seconds_since_last_output" msgpack:"seconds_since_last_output"`
}

type IdleStatusMsg struct {
	Tabs []IdleTabStatus `json:"tabs" msgpack:"tabs"`
}

type ProcessTabStatus struct {
	TabID string `json:"tab_id" msgpack:"tab_id"`
	PID   int    `json:"pid" msgpack:"pid"`
}

type ProcessStatusMsg struct {
	Tabs []ProcessTabStatus `json:"tabs" msgpack:"tabs"`
}

type UpdateStatusMsg struct {
	Latest *string `json:"latest,omitempty" msgpack:"latest,omitempty"`
}

type GraphicsMsg struct {
	TabID    string   `json:"tab_id" msgpack:"tab_id"`
	Payloads [][]byte `json:"payloads" msgpack:"payloads"`
}

type ErrorMsg struct {
	Message string `json:"message" msgpack:"message"`
}

// ErrTabNotFound is the canonical message text for the not-found error
// surface (§4.4, §7) — the client matches on this exact string to decide
// whether to retry with a spawn.
const ErrTabNotFound = "tab not found"
