package cmd

import (
	"fmt"
	"strings"

	"h2mux/internal/termemu"
)

// renderScreen draws a full termemu.Screen to an ANSI terminal: clear,
// home, one line per row with minimal SGR runs, then park the cursor.
// The spec's own layout/draw pass is out of scope (the UI this ships
// with is intentionally minimal); this is just enough to exercise the
// Screen data this client consumes (§1, §3).
func renderScreen(w *strings.Builder, s termemu.Screen) {
	w.WriteString("\x1b[2J\x1b[H")
	for i, line := range s.Lines {
		if i > 0 {
			w.WriteString("\r\n")
		}
		writeLine(w, line)
	}
	fmt.Fprintf(w, "\x1b[%d;%dH", s.CursorRow+1, s.CursorCol+1)
	w.WriteString(cursorShapeSeq(s.CursorShape))
}

func writeLine(w *strings.Builder, line termemu.Line) {
	var cur termemu.Attrs
	curFg, curBg := termemu.DefaultColor, termemu.DefaultColor
	haveSGR := false

	for _, c := range line {
		if c.DisplayWidth == 0 {
			continue
		}
		if !haveSGR || c.Attrs != cur || c.Fg != curFg || c.Bg != curBg {
			w.WriteString(sgrSeq(c.Attrs, c.Fg, c.Bg))
			cur, curFg, curBg = c.Attrs, c.Fg, c.Bg
			haveSGR = true
		}
		w.WriteRune(c.Ch)
	}
	if haveSGR {
		w.WriteString("\x1b[0m")
	}
}

func sgrSeq(a termemu.Attrs, fg, bg termemu.Color) string {
	var parts []string
	parts = append(parts, "0")
	if a.Bold {
		parts = append(parts, "1")
	}
	if a.Dim {
		parts = append(parts, "2")
	}
	if a.Italic {
		parts = append(parts, "3")
	}
	if a.Underline {
		parts = append(parts, "4")
	}
	if a.Reverse {
		parts = append(parts, "7")
	}
	if a.Hidden {
		parts = append(parts, "8")
	}
	if a.Strikethrough {
		parts = append(parts, "9")
	}
	parts = append(parts, colorSeq(fg, true)...)
	parts = append(parts, colorSeq(bg, false)...)
	return "\x1b[" + strings.Join(parts, ";") + "m"
}

func colorSeq(c termemu.Color, foreground bool) []string {
	switch c.Kind {
	case termemu.ColorIndexed:
		if foreground {
			return []string{"38", "5", fmt.Sprint(c.Index)}
		}
		return []string{"48", "5", fmt.Sprint(c.Index)}
	case termemu.ColorRGB:
		if foreground {
			return []string{"38", "2", fmt.Sprint(c.R), fmt.Sprint(c.G), fmt.Sprint(c.B)}
		}
		return []string{"48", "2", fmt.Sprint(c.R), fmt.Sprint(c.G), fmt.Sprint(c.B)}
	default:
		return nil
	}
}

func cursorShapeSeq(shape termemu.CursorShape) string {
	switch shape {
	case termemu.CursorBlock:
		return "\x1b[2 q"
	case termemu.CursorBeam:
		return "\x1b[6 q"
	case termemu.CursorUnderline:
		return "\x1b[4 q"
	case termemu.CursorHidden:
		return "\x1b[?25l"
	default:
		return ""
	}
}
