// Package termemu implements a headless xterm-family terminal emulator: it
// consumes a PTY output byte stream and exposes point-in-time Screen
// snapshots at an arbitrary size, independent of the PTY's own geometry.
package termemu

// CursorShape is the visual cursor style set by DECSCUSR.
type CursorShape int

const (
	CursorBlock CursorShape = iota
	CursorBeam
	CursorUnderline
	CursorHidden
)

// ColorKind discriminates the Color variant.
type ColorKind int

const (
	ColorDefault ColorKind = iota
	ColorIndexed
	ColorRGB
)

// Color is either the inherited default, a 256-color index, or 24-bit RGB.
type Color struct {
	Kind  ColorKind
	Index uint8
	R, G, B uint8
}

// DefaultColor is the zero value: inherit from the outer terminal.
var DefaultColor = Color{Kind: ColorDefault}

// Indexed builds a 256-color palette entry.
func Indexed(i uint8) Color { return Color{Kind: ColorIndexed, Index: i} }

// RGB builds a 24-bit truecolor value.
func RGB(r, g, b uint8) Color { return Color{Kind: ColorRGB, R: r, G: g, B: b} }

// Attrs holds the boolean SGR attributes of a cell.
type Attrs struct {
	Bold          bool
	Italic        bool
	Underline     bool
	Dim           bool
	Reverse       bool
	Strikethrough bool
	Hidden        bool
}

// Cell is a single grid position. DisplayWidth 0 marks the continuation
// slot following a wide (DisplayWidth 2) character; Ch is meaningless
// there and must be ignored by renderers.
type Cell struct {
	Ch             rune
	DisplayWidth   int
	Fg             Color
	Bg             Color
	UnderlineColor *Color
	Attrs          Attrs
	Zerowidth      []rune
}

// blankCell returns a cell representing empty screen background.
func blankCell() Cell {
	return Cell{Ch: ' ', DisplayWidth: 1, Fg: DefaultColor, Bg: DefaultColor}
}

// Line is an ordered sequence of cells, one screen row.
type Line []Cell

// Screen is an emulator snapshot at a fixed (rows, cols).
type Screen struct {
	Lines              []Line
	CursorRow          int
	CursorCol          int
	CursorShape        CursorShape
	Title              *string
	Bell               bool
	FocusEventsEnabled bool
	Cwd                *string
}

// Rows reports the number of lines in the snapshot, which may be smaller
// than the row count it was requested at (the consumer bottom-aligns
// shorter screens).
func (s Screen) Rows() int { return len(s.Lines) }
