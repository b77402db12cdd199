package termemu

import (
	"sync"

	"github.com/mattn/go-runewidth"
)

// Emulator is the capability the daemon's PTY tab drives: consume PTY
// output bytes and expose a coherent screen snapshot at any (rows, cols).
// Implementations are selected by config (§9 "Dynamic dispatch of
// terminal emulators") and stored behind this interface by the registry.
type Emulator interface {
	Ingest(data []byte)
	Resize(rows, cols int)
	Snapshot(rows, cols int) Screen
	Scroll(delta int)
	InputModes() InputModes
}

// InputModes reports the DEC private modes the client needs to adjust its
// own key/mouse handling (§4.4 get_input_modes).
type InputModes struct {
	Mouse          bool
	BracketedPaste bool
}

// ResizeStrategy selects how Resize behaves (§4.1).
type ResizeStrategy int

const (
	ResizeFixed ResizeStrategy = iota
	ResizeSync
)

// emulator is the concrete xterm-family implementation.
type emulator struct {
	mu sync.Mutex

	strategy ResizeStrategy

	primary *grid
	alt     *grid
	active  *grid

	cur        cursor
	savedCur   savedCursor
	modes      *modeState
	title      *string
	bell       bool
	cursorShape CursorShape

	scrollOffset int // lines into scrollback; 0 = live

	// parser state carried across Ingest calls
	pending    []byte // incomplete UTF-8 tail
	escState   escState
	oscBuf     []byte
	csiBuf     []byte
	csiPrivate bool
}

type escState int

const (
	stNormal escState = iota
	stEsc
	stCSI
	stOSC
	stOSCEsc
)

// New creates an emulator with the given starting geometry and scrollback
// depth. maxScrollback <= 0 means unbounded-ish (a large default cap).
func New(rows, cols, maxScrollback int, strategy ResizeStrategy) Emulator {
	if maxScrollback <= 0 {
		maxScrollback = 10000
	}
	e := &emulator{
		strategy: strategy,
		primary:  newGrid(rows, cols, maxScrollback),
		modes:    newModeState(),
		cur:      newCursor(),
	}
	e.active = e.primary
	return e
}

func (e *emulator) Resize(rows, cols int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.strategy == ResizeFixed {
		return
	}
	e.primary.resize(rows, cols)
	if e.alt != nil {
		e.alt.resize(rows, cols)
	}
	e.clampCursor()
}

func (e *emulator) Scroll(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scrollOffset += delta
	max := e.active.historySize()
	if e.scrollOffset > max {
		e.scrollOffset = max
	}
	if e.scrollOffset < 0 {
		e.scrollOffset = 0
	}
}

func (e *emulator) clampCursor() {
	if e.cur.row >= e.active.rows {
		e.cur.row = e.active.rows - 1
	}
	if e.cur.row < 0 {
		e.cur.row = 0
	}
	if e.cur.col >= e.active.cols {
		e.cur.col = e.active.cols - 1
	}
	if e.cur.col < 0 {
		e.cur.col = 0
	}
}

// Snapshot renders the active buffer (honoring any scrollback offset) into
// a Screen of at most rows x cols. The cursor is clamped into range and
// bell is cleared (edge-triggered at the emulator boundary, §4.1).
func (e *emulator) Snapshot(rows, cols int) Screen {
	e.mu.Lock()
	defer e.mu.Unlock()

	src := e.composeVisible()
	start := 0
	if len(src) > rows {
		start = len(src) - rows
	}
	visible := src[start:]

	out := make([]Line, len(visible))
	for i, l := range visible {
		out[i] = clipLine(l, cols)
	}

	cr, cc := e.cur.row, e.cur.col
	if e.scrollOffset == 0 {
		// cursor row is relative to the live screen, which is bottom-aligned
		// within out when out is shorter than rows.
	} else {
		cr, cc = -1, -1 // cursor not meaningfully placed while scrolled back
	}
	if cr >= rows {
		cr = rows - 1
	}
	if cr < 0 {
		cr = 0
	}
	if cc >= cols {
		cc = cols - 1
	}
	if cc < 0 {
		cc = 0
	}

	s := Screen{
		Lines:              out,
		CursorRow:          cr,
		CursorCol:          cc,
		CursorShape:        e.effectiveCursorShape(),
		Bell:               e.bell,
		FocusEventsEnabled: e.modes.focusEvents(),
	}
	if e.title != nil {
		t := *e.title
		s.Title = &t
	}
	e.bell = false
	return s
}

func (e *emulator) effectiveCursorShape() CursorShape {
	if !e.modes.cursorVisible() {
		return CursorHidden
	}
	return e.cursorShape
}

// InputModes reports the mouse-reporting and bracketed-paste modes
// currently enabled via DEC private mode sequences.
func (e *emulator) InputModes() InputModes {
	e.mu.Lock()
	defer e.mu.Unlock()
	return InputModes{
		Mouse:          e.modes.mouseReportingEnabled(),
		BracketedPaste: e.modes.bracketedPaste(),
	}
}

// composeVisible returns scrollback (if scrolled) followed by the live
// grid, as the window the snapshot clips from.
func (e *emulator) composeVisible() []Line {
	g := e.active
	if e.scrollOffset == 0 {
		return g.lines
	}
	hist := g.scrollback
	// Take the last scrollOffset scrollback lines, then the live screen
	// minus that many rows, so the visible window height stays rows-ish.
	n := e.scrollOffset
	if n > len(hist) {
		n = len(hist)
	}
	tail := hist[len(hist)-n:]
	keep := len(g.lines) - n
	if keep < 0 {
		keep = 0
	}
	combined := make([]Line, 0, len(tail)+keep)
	combined = append(combined, tail...)
	combined = append(combined, g.lines[:keep]...)
	return combined
}

// clipLine truncates l to at most cols cells. Shorter lines are returned
// as-is: the consumer left-aligns and pads visually, not the emulator.
func clipLine(l Line, cols int) Line {
	if len(l) <= cols {
		return l
	}
	return l[:cols]
}

// Ingest feeds a chunk of PTY output bytes through the control-sequence
// parser. Malformed sequences are absorbed without corrupting the grid
// beyond the cell(s) they would have touched (§4.1 failure semantics).
func (e *emulator) Ingest(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) > 0 {
		data = append(e.pending, data...)
		e.pending = nil
	}

	i := 0
	for i < len(data) {
		b := data[i]
		switch e.escState {
		case stNormal:
			switch b {
			case 0x1B:
				e.escState = stEsc
				i++
			case 0x07:
				e.bell = true
				i++
			case '\r':
				e.cur.col = 0
				i++
			case '\n', '\v', '\f':
				e.lineFeed()
				i++
			case '\b':
				if e.cur.col > 0 {
					e.cur.col--
				}
				i++
			case '\t':
				e.tab()
				i++
			default:
				if b < 0x20 || b == 0x7F {
					i++
					continue
				}
				r, size, incomplete := decodeRune(data[i:])
				if incomplete {
					e.pending = append(e.pending, data[i:]...)
					i = len(data)
					continue
				}
				e.putChar(r)
				i += size
			}
		case stEsc:
			i = e.stepEsc(data, i)
		case stCSI:
			i = e.stepCSI(data, i)
		case stOSC:
			i = e.stepOSC(data, i)
		case stOSCEsc:
			i = e.stepOSCEsc(data, i)
		}
	}
}

// decodeRune decodes one UTF-8 rune from b, reporting whether b ends with
// an incomplete multi-byte sequence (in which case the caller should
// buffer the tail and wait for more bytes).
func decodeRune(b []byte) (r rune, size int, incomplete bool) {
	if b[0] < 0x80 {
		return rune(b[0]), 1, false
	}
	n := 0
	switch {
	case b[0]&0xE0 == 0xC0:
		n = 2
	case b[0]&0xF0 == 0xE0:
		n = 3
	case b[0]&0xF8 == 0xF0:
		n = 4
	default:
		return rune(b[0]), 1, false // invalid lead byte, treat as latin1
	}
	if len(b) < n {
		return 0, 0, true
	}
	ru := decodeUTF8(b[:n])
	return ru, n, false
}

func decodeUTF8(b []byte) rune {
	switch len(b) {
	case 2:
		return rune(b[0]&0x1F)<<6 | rune(b[1]&0x3F)
	case 3:
		return rune(b[0]&0x0F)<<12 | rune(b[1]&0x3F)<<6 | rune(b[2]&0x3F)
	case 4:
		return rune(b[0]&0x07)<<18 | rune(b[1]&0x3F)<<12 | rune(b[2]&0x3F)<<6 | rune(b[3]&0x3F)
	}
	return rune(b[0])
}

func (e *emulator) lineFeed() {
	if e.cur.row == e.active.scrollBottom {
		e.active.scrollUp(1)
	} else if e.cur.row < e.active.rows-1 {
		e.cur.row++
	}
}

func (e *emulator) tab() {
	next := (e.cur.col/8 + 1) * 8
	if next >= e.active.cols {
		next = e.active.cols - 1
	}
	e.cur.col = next
}

// putChar writes one rune at the cursor, advancing by its display width
// and wrapping to the next line at the right margin.
func (e *emulator) putChar(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		// Combining mark: attach to the previous cell instead of advancing.
		if e.cur.col > 0 {
			l := e.active.line(e.cur.row)
			prev := e.cur.col - 1
			if prev < len(l) {
				l[prev].Zerowidth = append(l[prev].Zerowidth, r)
			}
		}
		return
	}
	if e.cur.col+w > e.active.cols {
		e.cur.col = 0
		e.lineFeed()
	}
	l := e.active.line(e.cur.row)
	cell := e.cur.template
	cell.Ch = r
	cell.DisplayWidth = w
	cell.Zerowidth = nil
	if e.cur.col < len(l) {
		l[e.cur.col] = cell
	}
	if w == 2 && e.cur.col+1 < len(l) {
		spacer := e.cur.template
		spacer.DisplayWidth = 0
		l[e.cur.col+1] = spacer
	}
	e.cur.col += w
}
