package termemu

import (
	"strconv"
	"strings"
)

// stepEsc consumes the byte following ESC and decides the next state.
// Intermediate-byte sequences (charset designation, DEC tests) consume
// exactly one extra byte and return to Normal without dispatching.
func (e *emulator) stepEsc(data []byte, i int) int {
	b := data[i]
	switch b {
	case '[':
		e.escState = stCSI
		e.csiBuf = nil
		e.csiPrivate = false
		return i + 1
	case ']':
		e.escState = stOSC
		e.oscBuf = nil
		return i + 1
	case '7':
		e.savedCur = savedCursor{row: e.cur.row, col: e.cur.col, template: e.cur.template, valid: true}
		e.escState = stNormal
		return i + 1
	case '8':
		if e.savedCur.valid {
			e.cur.row, e.cur.col, e.cur.template = e.savedCur.row, e.savedCur.col, e.savedCur.template
			e.clampCursor()
		}
		e.escState = stNormal
		return i + 1
	case 'c':
		e.reset()
		e.escState = stNormal
		return i + 1
	case 'M':
		e.reverseIndex()
		e.escState = stNormal
		return i + 1
	case 'D':
		e.lineFeed()
		e.escState = stNormal
		return i + 1
	case 'E':
		e.cur.col = 0
		e.lineFeed()
		e.escState = stNormal
		return i + 1
	case '(', ')', '*', '+', '#', '%':
		// One more byte (charset designator / DEC test code) then done.
		if i+1 < len(data) {
			e.escState = stNormal
			return i + 2
		}
		// Incomplete at end of chunk: wait for more input.
		e.pending = append([]byte{0x1B, b}, e.pending...)
		e.escState = stNormal
		return len(data)
	default:
		e.escState = stNormal
		return i + 1
	}
}

func (e *emulator) reverseIndex() {
	if e.cur.row == e.active.scrollTop {
		e.active.scrollDown(1)
	} else if e.cur.row > 0 {
		e.cur.row--
	}
}

func (e *emulator) reset() {
	rows, cols := e.active.rows, e.active.cols
	e.primary = newGrid(rows, cols, e.primary.maxScrollback)
	e.alt = nil
	e.active = e.primary
	e.cur = newCursor()
	e.modes = newModeState()
	e.title = nil
}

// stepCSI accumulates CSI body bytes until the final byte (0x40-0x7E).
func (e *emulator) stepCSI(data []byte, i int) int {
	b := data[i]
	if b >= 0x40 && b <= 0x7E {
		e.dispatchCSI(b)
		e.escState = stNormal
		return i + 1
	}
	if b == '?' && len(e.csiBuf) == 0 {
		e.csiPrivate = true
		return i + 1
	}
	e.csiBuf = append(e.csiBuf, b)
	return i + 1
}

func (e *emulator) dispatchCSI(final byte) {
	params, hasSpace := splitCSIParams(e.csiBuf)
	get := func(idx, def int) int {
		if idx < len(params) {
			if params[idx] == -1 {
				return def
			}
			return params[idx]
		}
		return def
	}

	if hasSpace && final == 'q' {
		e.setCursorShape(get(0, 1))
		return
	}

	if e.csiPrivate {
		switch final {
		case 'h':
			for _, p := range params {
				if p > 0 {
					e.modes.enable(p)
					e.onPrivateModeEnabled(p)
				}
			}
		case 'l':
			for _, p := range params {
				if p > 0 {
					e.modes.disable(p)
				}
			}
			if hasMode(params, 1049) {
				e.exitAltScreen()
			}
		}
		return
	}

	switch final {
	case 'A':
		e.cur.row = max0(e.cur.row - get(0, 1))
	case 'B':
		e.cur.row = minInt(e.active.rows-1, e.cur.row+get(0, 1))
	case 'C':
		e.cur.col = minInt(e.active.cols-1, e.cur.col+get(0, 1))
	case 'D':
		e.cur.col = max0(e.cur.col - get(0, 1))
	case 'G', '`':
		e.cur.col = clampIdx(get(0, 1)-1, e.active.cols)
	case 'd':
		e.cur.row = clampIdx(get(0, 1)-1, e.active.rows)
	case 'H', 'f':
		e.cur.row = clampIdx(get(0, 1)-1, e.active.rows)
		e.cur.col = clampIdx(get(1, 1)-1, e.active.cols)
	case 'J':
		e.eraseDisplay(get(0, 0))
	case 'K':
		e.eraseLine(get(0, 0))
	case 'L':
		e.insertLines(get(0, 1))
	case 'M':
		e.deleteLines(get(0, 1))
	case '@':
		e.insertChars(get(0, 1))
	case 'P':
		e.deleteChars(get(0, 1))
	case 'X':
		e.eraseChars(get(0, 1))
	case 'S':
		e.active.scrollUp(get(0, 1))
	case 'T':
		e.active.scrollDown(get(0, 1))
	case 'r':
		top := clampIdx(get(0, 1)-1, e.active.rows)
		bot := clampIdx(get(1, e.active.rows)-1, e.active.rows)
		if top < bot {
			e.active.scrollTop, e.active.scrollBottom = top, bot
		}
		e.cur.row, e.cur.col = 0, 0
	case 'm':
		applySGR(&e.cur.template, params)
	case 's':
		e.savedCur = savedCursor{row: e.cur.row, col: e.cur.col, template: e.cur.template, valid: true}
	case 'u':
		if e.savedCur.valid {
			e.cur.row, e.cur.col, e.cur.template = e.savedCur.row, e.savedCur.col, e.savedCur.template
		}
	}
}

func (e *emulator) setCursorShape(p int) {
	switch p {
	case 0, 1, 2:
		e.cursorShape = CursorBlock
	case 3, 4:
		e.cursorShape = CursorUnderline
	case 5, 6:
		e.cursorShape = CursorBeam
	}
}

func (e *emulator) exitAltScreen() {
	if e.active == e.alt {
		e.active = e.primary
		if e.savedCur.valid {
			e.cur.row, e.cur.col = e.savedCur.row, e.savedCur.col
		}
	}
}

func (e *emulator) enterAltScreenIfNeeded() {
	if e.alt == nil {
		e.alt = newGrid(e.primary.rows, e.primary.cols, 0)
	}
	if e.active != e.alt {
		e.savedCur = savedCursor{row: e.cur.row, col: e.cur.col, template: e.cur.template, valid: true}
		e.active = e.alt
		e.cur.row, e.cur.col = 0, 0
	}
}

func hasMode(params []int, mode int) bool {
	for _, p := range params {
		if p == mode {
			return true
		}
	}
	return false
}

func (e *emulator) eraseDisplay(mode int) {
	switch mode {
	case 0:
		e.eraseLine(0)
		for r := e.cur.row + 1; r < e.active.rows; r++ {
			e.clearLine(r)
		}
	case 1:
		e.eraseLine(1)
		for r := 0; r < e.cur.row; r++ {
			e.clearLine(r)
		}
	case 2, 3:
		for r := 0; r < e.active.rows; r++ {
			e.clearLine(r)
		}
	}
}

func (e *emulator) clearLine(row int) {
	l := e.active.line(row)
	for i := range l {
		l[i] = blankCell()
	}
}

func (e *emulator) eraseLine(mode int) {
	l := e.active.line(e.cur.row)
	switch mode {
	case 0:
		for i := e.cur.col; i < len(l); i++ {
			l[i] = blankCell()
		}
	case 1:
		for i := 0; i <= e.cur.col && i < len(l); i++ {
			l[i] = blankCell()
		}
	case 2:
		for i := range l {
			l[i] = blankCell()
		}
	}
}

func (e *emulator) insertLines(n int) {
	if e.cur.row < e.active.scrollTop || e.cur.row > e.active.scrollBottom {
		return
	}
	saveTop := e.active.scrollTop
	e.active.scrollTop = e.cur.row
	e.active.scrollDown(n)
	e.active.scrollTop = saveTop
}

func (e *emulator) deleteLines(n int) {
	if e.cur.row < e.active.scrollTop || e.cur.row > e.active.scrollBottom {
		return
	}
	saveTop := e.active.scrollTop
	e.active.scrollTop = e.cur.row
	e.active.scrollUp(n)
	e.active.scrollTop = saveTop
}

func (e *emulator) insertChars(n int) {
	l := e.active.line(e.cur.row)
	c := e.cur.col
	if c >= len(l) {
		return
	}
	end := len(l) - n
	if end < c {
		end = c
	}
	copy(l[c+n:], l[c:end])
	for i := c; i < c+n && i < len(l); i++ {
		l[i] = blankCell()
	}
}

func (e *emulator) deleteChars(n int) {
	l := e.active.line(e.cur.row)
	c := e.cur.col
	if c >= len(l) {
		return
	}
	copy(l[c:], l[minInt(c+n, len(l)):])
	for i := maxInt(len(l)-n, c); i < len(l); i++ {
		l[i] = blankCell()
	}
}

func (e *emulator) eraseChars(n int) {
	l := e.active.line(e.cur.row)
	for i := e.cur.col; i < e.cur.col+n && i < len(l); i++ {
		l[i] = blankCell()
	}
}

// splitCSIParams parses ';'-separated decimal params (empty meaning -1 /
// "use default"). hasSpace reports a trailing 0x20 intermediate (DECSCUSR).
func splitCSIParams(buf []byte) (params []int, hasSpace bool) {
	s := string(buf)
	if strings.HasSuffix(s, " ") {
		hasSpace = true
		s = strings.TrimSuffix(s, " ")
	}
	if s == "" {
		return nil, hasSpace
	}
	parts := strings.Split(s, ";")
	params = make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimRight(p, " ")
		if p == "" {
			params = append(params, -1)
			continue
		}
		n, err := strconv.Atoi(strings.Split(p, ":")[0])
		if err != nil {
			params = append(params, -1)
			continue
		}
		params = append(params, n)
	}
	return params, hasSpace
}

func clampIdx(i, limit int) int {
	if i < 0 {
		return 0
	}
	if i >= limit {
		return limit - 1
	}
	return i
}

func max0(i int) int {
	if i < 0 {
		return 0
	}
	return i
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// stepOSC accumulates OSC body bytes until BEL or ESC (start of ST).
func (e *emulator) stepOSC(data []byte, i int) int {
	b := data[i]
	switch b {
	case 0x07:
		e.finishOSC()
		e.escState = stNormal
		return i + 1
	case 0x1B:
		e.escState = stOSCEsc
		return i + 1
	default:
		e.oscBuf = append(e.oscBuf, b)
		return i + 1
	}
}

func (e *emulator) stepOSCEsc(data []byte, i int) int {
	b := data[i]
	if b == '\\' {
		e.finishOSC()
		e.escState = stNormal
		return i + 1
	}
	// Not a valid ST; treat the ESC as data inside the OSC body (lenient)
	// and reprocess this byte as a fresh OSC byte.
	e.oscBuf = append(e.oscBuf, 0x1B)
	e.escState = stOSC
	return i
}

func (e *emulator) finishOSC() {
	s := string(e.oscBuf)
	e.oscBuf = nil
	idx := strings.IndexByte(s, ';')
	if idx < 0 {
		return
	}
	num, err := strconv.Atoi(s[:idx])
	if err != nil {
		return
	}
	body := s[idx+1:]
	switch num {
	case 0, 2:
		t := body
		e.title = &t
	}
}

// onPrivateModeEnabled reacts to a DECSET mode flip that needs more than
// a bit set (currently: entering the alternate screen on mode 1049).
func (e *emulator) onPrivateModeEnabled(mode int) {
	if mode == 1049 {
		e.enterAltScreenIfNeeded()
	}
}
