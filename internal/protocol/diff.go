package protocol

import (
	"reflect"

	"h2mux/internal/termemu"
)

// DiffResult is the outcome of computing a diff between two screens:
// either "unchanged" (nothing to send), a line-level diff, or a signal
// that a full screen should be sent instead (§4.4, §8).
type DiffResult struct {
	Unchanged bool
	FullScreen bool
	Diff       ScreenDiffMsg
}

// ComputeDiff compares a against b and decides how to represent the
// transition from a to b on the wire. If more than half the lines
// differ, FullScreen is set instead of populating ChangedLines, per the
// "more than half the lines differ -> full screen" rule (§4.4, §8).
func ComputeDiff(tabID string, a, b termemu.Screen) DiffResult {
	var changed []ChangedLine
	maxLines := len(a.Lines)
	if len(b.Lines) > maxLines {
		maxLines = len(b.Lines)
	}
	for i := 0; i < maxLines; i++ {
		var al, bl termemu.Line
		if i < len(a.Lines) {
			al = a.Lines[i]
		}
		if i < len(b.Lines) {
			bl = b.Lines[i]
		}
		if !linesEqual(al, bl) {
			changed = append(changed, ChangedLine{Row: i, Line: bl})
		}
	}

	metaChanged := a.CursorRow != b.CursorRow ||
		a.CursorCol != b.CursorCol ||
		a.CursorShape != b.CursorShape ||
		!stringPtrEqual(a.Title, b.Title) ||
		b.Bell ||
		a.FocusEventsEnabled != b.FocusEventsEnabled

	if len(changed) == 0 && !metaChanged {
		return DiffResult{Unchanged: true}
	}

	if maxLines > 0 && len(changed)*2 > maxLines {
		return DiffResult{FullScreen: true}
	}

	return DiffResult{
		Diff: ScreenDiffMsg{
			TabID:              tabID,
			ChangedLines:       changed,
			CursorRow:          b.CursorRow,
			CursorCol:          b.CursorCol,
			CursorShape:        b.CursorShape,
			Title:              b.Title,
			Bell:               b.Bell,
			FocusEventsEnabled: b.FocusEventsEnabled,
		},
	}
}

// ApplyDiff mutates a screen snapshot in place per the changed lines and
// metadata in d, as compute_diff's counterpart (§8: apply(d,a) == b).
func ApplyDiff(screen *termemu.Screen, d ScreenDiffMsg) {
	for _, c := range d.ChangedLines {
		for len(screen.Lines) <= c.Row {
			screen.Lines = append(screen.Lines, nil)
		}
		screen.Lines[c.Row] = c.Line
	}
	screen.CursorRow = d.CursorRow
	screen.CursorCol = d.CursorCol
	screen.CursorShape = d.CursorShape
	screen.Title = d.Title
	screen.Bell = d.Bell
	screen.FocusEventsEnabled = d.FocusEventsEnabled
}

func linesEqual(a, b termemu.Line) bool {
	if len(a) != len(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
