package ptytab

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"h2mux/internal/termemu"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestSpawnEchoesInputThroughEmulator(t *testing.T) {
	tab, err := Spawn("t1", "cat", nil, 24, 80, "", nil, termemu.ResizeFixed, 0, testLogger())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer tab.Close()

	if _, err := tab.Write([]byte("hello\r"), time.Second); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, _ := tab.Snapshot(24, 80)
		if len(s.Lines) > 0 && string(runesOf(s.Lines[0][:5])) == "hello" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected \"hello\" to appear on the emulator grid")
}

func runesOf(cells []termemu.Cell) []rune {
	out := make([]rune, len(cells))
	for i, c := range cells {
		out[i] = c.Ch
	}
	return out
}

func TestWriteTimesOutWhenChildNotReading(t *testing.T) {
	tab, err := Spawn("t2", "sleep", []string{"5"}, 24, 80, "", nil, termemu.ResizeFixed, 0, testLogger())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer tab.Close()

	// sleep doesn't read stdin; fill the pty buffer, then expect a timeout.
	chunk := make([]byte, 1<<20)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 8; i++ {
			tab.Write(chunk, 50*time.Millisecond)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writes did not return within expected time")
	}
}

func TestRegistrySpawnIsIdempotent(t *testing.T) {
	r := NewRegistry(testLogger())
	p := SpawnParams{Command: "cat", Rows: 24, Cols: 80, Strategy: termemu.ResizeFixed}

	res1, err := r.Spawn("tab-a", p)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer res1.Tab.Close()
	if res1.AlreadyExisted {
		t.Fatal("expected first spawn to create a new tab")
	}

	res2, err := r.Spawn("tab-a", p)
	if err != nil {
		t.Fatalf("respawn: %v", err)
	}
	if !res2.AlreadyExisted {
		t.Fatal("expected second spawn on same id to report already existed")
	}
	if res2.Tab != res1.Tab {
		t.Fatal("expected the same tab pointer back")
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry(testLogger())
	if _, ok := r.Get("nope"); ok {
		t.Fatal("expected no tab for an unregistered id")
	}
}

func TestRegistryRemoveClosesTab(t *testing.T) {
	r := NewRegistry(testLogger())
	res, err := r.Spawn("tab-b", SpawnParams{Command: "cat", Rows: 24, Cols: 80, Strategy: termemu.ResizeFixed})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := r.Remove("tab-b"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := r.Get("tab-b"); ok {
		t.Fatal("expected tab to be gone after Remove")
	}
	_ = res
}

func TestIsIdleReflectsRecentOutput(t *testing.T) {
	tab, err := Spawn("t3", "cat", nil, 24, 80, "", nil, termemu.ResizeFixed, 0, testLogger())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer tab.Close()

	tab.Write([]byte("x"), time.Second)
	time.Sleep(50 * time.Millisecond)
	if tab.IsIdle(2 * time.Second) {
		t.Fatal("expected tab to not be idle immediately after output")
	}
}
