package protocol

import (
	"bytes"
	"testing"

	"h2mux/internal/termemu"
)

func line(s string) termemu.Line {
	l := make(termemu.Line, len(s))
	for i, r := range s {
		l[i] = termemu.Cell{Ch: r, DisplayWidth: 1, Fg: termemu.DefaultColor, Bg: termemu.DefaultColor}
	}
	return l
}

func screen(lines ...string) termemu.Screen {
	s := termemu.Screen{}
	for _, l := range lines {
		s.Lines = append(s.Lines, line(l))
	}
	return s
}

func TestComputeDiffUnchangedWhenIdentical(t *testing.T) {
	a := screen("hello", "world")
	b := screen("hello", "world")
	d := ComputeDiff("t", a, b)
	if !d.Unchanged {
		t.Fatal("expected unchanged for identical screens")
	}
}

func TestComputeDiffAppliesToReproduceB(t *testing.T) {
	a := screen("hello", "world", "foo")
	b := screen("hellx", "world", "foo")
	b.CursorRow, b.CursorCol = 0, 5
	d := ComputeDiff("t", a, b)
	if d.Unchanged || d.FullScreen {
		t.Fatalf("expected a line-level diff, got %+v", d)
	}
	applied := termemu.Screen{Lines: append([]termemu.Line(nil), a.Lines...)}
	ApplyDiff(&applied, d.Diff)
	if !linesEqual(applied.Lines[0], b.Lines[0]) {
		t.Fatalf("expected row 0 to match b after apply, got %v", applied.Lines[0])
	}
	if applied.CursorRow != b.CursorRow || applied.CursorCol != b.CursorCol {
		t.Fatal("expected cursor to match b after apply")
	}
}

func TestComputeDiffFullScreenWhenMoreThanHalfLinesDiffer(t *testing.T) {
	a := screen("a", "b", "c", "d")
	b := screen("w", "x", "y", "d")
	d := ComputeDiff("t", a, b)
	if !d.FullScreen {
		t.Fatalf("expected full screen fallback, got %+v", d)
	}
}

func TestFramingRoundTripJSON(t *testing.T) {
	var buf bytes.Buffer
	env := Envelope{Kind: KindHello, Hello: &Hello{Version: "1.2.3"}}
	if err := WriteJSONLine(&buf, env); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := NewReader(&buf)
	got, err := r.ReadEnvelope()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Kind != KindHello || got.Hello == nil || got.Hello.Version != "1.2.3" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestFramingRoundTripBinary(t *testing.T) {
	var buf bytes.Buffer
	env := Envelope{Kind: KindScreen, Screen: &ScreenMsg{TabID: "t1", Content: screen("hi")}}
	if err := WriteBinary(&buf, env); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := NewReader(&buf)
	got, err := r.ReadEnvelope()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Kind != KindScreen || got.Screen == nil || got.Screen.TabID != "t1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestFramingPeekSelectsCorrectFormat(t *testing.T) {
	var buf bytes.Buffer
	WriteJSONLine(&buf, Envelope{Kind: KindHello, Hello: &Hello{Version: "a"}})
	WriteBinary(&buf, Envelope{Kind: KindHello, Hello: &Hello{Version: "b"}})

	r := NewReader(&buf)
	first, err := r.ReadEnvelope()
	if err != nil || first.Hello.Version != "a" {
		t.Fatalf("expected json frame first, got %+v err=%v", first, err)
	}
	second, err := r.ReadEnvelope()
	if err != nil || second.Hello.Version != "b" {
		t.Fatalf("expected binary frame second, got %+v err=%v", second, err)
	}
}
