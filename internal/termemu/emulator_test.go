package termemu

import "testing"

func TestSnapshotClampsToRowsAndCols(t *testing.T) {
	e := New(24, 80, 0, ResizeFixed)
	e.Ingest([]byte("hello world"))
	s := e.Snapshot(10, 20)
	if len(s.Lines) > 10 {
		t.Fatalf("got %d lines, want <= 10", len(s.Lines))
	}
	for _, l := range s.Lines {
		if len(l) > 20 {
			t.Fatalf("line width %d exceeds 20", len(l))
		}
	}
	if s.CursorRow >= 10 || s.CursorCol >= 20 {
		t.Fatalf("cursor (%d,%d) not clamped to (10,20)", s.CursorRow, s.CursorCol)
	}
}

func TestBellLatchIsEdgeTriggered(t *testing.T) {
	e := New(24, 80, 0, ResizeFixed)
	e.Ingest([]byte{0x07})
	if !e.Snapshot(24, 80).Bell {
		t.Fatal("expected bell=true on first snapshot after BEL")
	}
	if e.Snapshot(24, 80).Bell {
		t.Fatal("expected bell=false on second snapshot with no further BEL")
	}
}

func TestFocusEventsMode(t *testing.T) {
	e := New(24, 80, 0, ResizeFixed)
	e.Ingest([]byte("\x1b[?1004h"))
	if !e.Snapshot(24, 80).FocusEventsEnabled {
		t.Fatal("expected focus_events_enabled=true after CSI ?1004h")
	}
	e.Ingest([]byte("\x1b[?1004l"))
	if e.Snapshot(24, 80).FocusEventsEnabled {
		t.Fatal("expected focus_events_enabled=false after CSI ?1004l")
	}
}

func TestWideCharPairing(t *testing.T) {
	e := New(24, 80, 0, ResizeFixed)
	e.Ingest([]byte("\xe4\xb8\xad")) // U+4E2D, a wide CJK character
	s := e.Snapshot(24, 80)
	if s.Lines[0][0].DisplayWidth != 2 {
		t.Fatalf("expected display_width=2 at (0,0), got %d", s.Lines[0][0].DisplayWidth)
	}
	if s.Lines[0][1].DisplayWidth != 0 {
		t.Fatalf("expected display_width=0 continuation at (0,1), got %d", s.Lines[0][1].DisplayWidth)
	}
}

func TestCursorClampedToGridBounds(t *testing.T) {
	e := New(5, 5, 0, ResizeFixed)
	e.Ingest([]byte("\x1b[10;10H"))
	s := e.Snapshot(5, 5)
	if s.CursorRow >= 5 || s.CursorCol >= 5 {
		t.Fatalf("cursor (%d,%d) escaped 5x5 bounds", s.CursorRow, s.CursorCol)
	}
}

func TestSGRColorsAndAttrs(t *testing.T) {
	e := New(24, 80, 0, ResizeFixed)
	e.Ingest([]byte("\x1b[1;31mhi\x1b[0m"))
	s := e.Snapshot(24, 80)
	c := s.Lines[0][0]
	if !c.Attrs.Bold {
		t.Fatal("expected bold attribute set")
	}
	if c.Fg.Kind != ColorIndexed || c.Fg.Index != 1 {
		t.Fatalf("expected indexed red fg, got %+v", c.Fg)
	}
}

func TestScrollClampedToHistorySize(t *testing.T) {
	e := New(3, 10, 5, ResizeFixed)
	for i := 0; i < 20; i++ {
		e.Ingest([]byte("line\r\n"))
	}
	e.(*emulator).Scroll(1000)
	if e.(*emulator).scrollOffset > 5 {
		t.Fatalf("scroll offset %d exceeds history cap 5", e.(*emulator).scrollOffset)
	}
	e.(*emulator).Scroll(-1000)
	if e.(*emulator).scrollOffset != 0 {
		t.Fatalf("expected scroll offset clamp to 0, got %d", e.(*emulator).scrollOffset)
	}
}
