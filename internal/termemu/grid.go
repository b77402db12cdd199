package termemu

// grid is the mutable character matrix the parser writes into. It tracks
// its own scrollback so Emulator.scroll(delta) and snapshot clipping can
// address history without re-running the byte stream.
type grid struct {
	rows, cols int
	lines      []Line // live screen, len == rows
	scrollback []Line // oldest first, capped at maxScrollback
	maxScrollback int

	scrollTop, scrollBottom int // 0-indexed, inclusive DECSTBM region
}

func newGrid(rows, cols, maxScrollback int) *grid {
	g := &grid{rows: rows, cols: cols, maxScrollback: maxScrollback}
	g.lines = make([]Line, rows)
	for i := range g.lines {
		g.lines[i] = g.blankLine()
	}
	g.scrollTop, g.scrollBottom = 0, rows-1
	return g
}

func (g *grid) blankLine() Line {
	l := make(Line, g.cols)
	for i := range l {
		l[i] = blankCell()
	}
	return l
}

// line returns the live line at row, growing the grid defensively if the
// parser races a resize (should not happen under the Tab mutex, but keeps
// the grid from panicking on malformed input).
func (g *grid) line(row int) Line {
	if row < 0 {
		row = 0
	}
	if row >= len(g.lines) {
		row = len(g.lines) - 1
	}
	return g.lines[row]
}

// scrollUp shifts the scroll region up by n lines, pushing the top lines
// of the region into scrollback only when the region is the full screen
// (matches xterm: scroll-region scrolling does not feed history).
func (g *grid) scrollUp(n int) {
	if n <= 0 {
		return
	}
	top, bot := g.scrollTop, g.scrollBottom
	full := top == 0 && bot == g.rows-1
	for i := 0; i < n; i++ {
		if full {
			g.pushScrollback(g.lines[top])
		}
		copy(g.lines[top:bot], g.lines[top+1:bot+1])
		g.lines[bot] = g.blankLine()
	}
}

// scrollDown shifts the scroll region down by n lines (used by RI/DECSTBM
// reverse scroll and insert-line at the region boundary).
func (g *grid) scrollDown(n int) {
	if n <= 0 {
		return
	}
	top, bot := g.scrollTop, g.scrollBottom
	for i := 0; i < n; i++ {
		copy(g.lines[top+1:bot+1], g.lines[top:bot])
		g.lines[top] = g.blankLine()
	}
}

func (g *grid) pushScrollback(l Line) {
	cp := make(Line, len(l))
	copy(cp, l)
	g.scrollback = append(g.scrollback, cp)
	if g.maxScrollback > 0 && len(g.scrollback) > g.maxScrollback {
		trim := len(g.scrollback) - g.maxScrollback
		g.scrollback = g.scrollback[trim:]
	}
}

func (g *grid) historySize() int { return len(g.scrollback) }

// resize reflows by clipping/padding columns and rows top-aligned; it does
// not attempt to reflow wrapped logical lines (xterm-family emulators vary
// widely here, and the spec's Sync resize policy accepts content loss).
func (g *grid) resize(rows, cols int) {
	newLines := make([]Line, rows)
	for i := range newLines {
		if i < len(g.lines) {
			newLines[i] = resizeLine(g.lines[i], cols)
		} else {
			newLines[i] = g.blankLineN(cols)
		}
	}
	g.lines = newLines
	g.rows, g.cols = rows, cols
	g.scrollTop, g.scrollBottom = 0, rows-1
}

func (g *grid) blankLineN(cols int) Line {
	l := make(Line, cols)
	for i := range l {
		l[i] = blankCell()
	}
	return l
}

func resizeLine(l Line, cols int) Line {
	out := make(Line, cols)
	for i := range out {
		if i < len(l) {
			out[i] = l[i]
		} else {
			out[i] = blankCell()
		}
	}
	return out
}
