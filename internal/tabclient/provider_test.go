package tabclient_test

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"h2mux/internal/config"
	"h2mux/internal/daemonsrv"
	"h2mux/internal/statedir"
	"h2mux/internal/tabclient"
	"h2mux/internal/termemu"
)

// startDaemon boots a real daemon over a real socket in a fresh temp
// state dir, mirroring daemonsrv's own integration test style.
func startDaemon(t *testing.T) func() {
	t.Helper()
	dir, err := os.MkdirTemp("", "h2muxclienttest-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	os.Setenv("H2MUX_DIR", dir)

	d := daemonsrv.New(zerolog.Nop(), config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	sockPath := statedir.SocketPath()
	for i := 0; i < 100; i++ {
		if _, err := os.Stat(sockPath); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return func() {
		cancel()
		<-errCh
		os.Unsetenv("H2MUX_DIR")
	}
}

func lineText(line termemu.Line) string {
	runes := make([]rune, 0, len(line))
	for _, c := range line {
		if c.DisplayWidth == 0 {
			continue
		}
		runes = append(runes, c.Ch)
	}
	return string(runes)
}

func screenContains(s termemu.Screen, want string) bool {
	for _, line := range s.Lines {
		if bytes.Contains([]byte(lineText(line)), []byte(want)) {
			return true
		}
	}
	return false
}

func waitForScreen(t *testing.T, p *tabclient.Provider, rows, cols int, want string) termemu.Screen {
	t.Helper()
	var last termemu.Screen
	for i := 0; i < 50; i++ {
		s, err := p.GetScreen(rows, cols)
		require.NoError(t, err)
		last = s
		if screenContains(s, want) {
			return s
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("never observed %q in screen, last=%+v", want, last.Lines)
	return last
}

func TestSpawnThenGetScreenSeesEcho(t *testing.T) {
	teardown := startDaemon(t)
	defer teardown()

	p := tabclient.New("t1", zerolog.Nop())
	require.NoError(t, p.Spawn(24, 80, "", "", nil))

	p.Write([]byte("echo hello\r"))
	waitForScreen(t, p, 24, 80, "hello")
}

func TestGetScreenUsesCacheWithinSameSize(t *testing.T) {
	teardown := startDaemon(t)
	defer teardown()

	p := tabclient.New("t2", zerolog.Nop())
	require.NoError(t, p.Spawn(24, 80, "", "", nil))

	first, err := p.GetScreen(24, 80)
	require.NoError(t, err)
	gen1 := p.Generation()

	second, err := p.GetScreen(24, 80)
	require.NoError(t, err)
	gen2 := p.Generation()

	require.Equal(t, len(first.Lines), len(second.Lines))
	require.GreaterOrEqual(t, gen2, gen1, "generation must never go backwards")
}

func TestResizeInvalidatesCacheAndRefetches(t *testing.T) {
	teardown := startDaemon(t)
	defer teardown()

	p := tabclient.New("t3", zerolog.Nop())
	require.NoError(t, p.Spawn(24, 80, "", "", nil))

	_, err := p.GetScreen(24, 80)
	require.NoError(t, err)

	p.Resize(30, 100)
	screen, err := p.GetScreen(30, 100)
	require.NoError(t, err)
	require.LessOrEqual(t, len(screen.Lines), 30)
}

func TestScrollFetchesFreshScreen(t *testing.T) {
	teardown := startDaemon(t)
	defer teardown()

	p := tabclient.New("t4", zerolog.Nop())
	require.NoError(t, p.Spawn(24, 80, "", "", nil))
	_, err := p.GetScreen(24, 80)
	require.NoError(t, err)

	screen, err := p.Scroll(-1)
	require.NoError(t, err)
	require.NotNil(t, screen.Lines)
}

func TestGetScreenOnUnspawnedTabSpawnsAndRetries(t *testing.T) {
	teardown := startDaemon(t)
	defer teardown()

	p := tabclient.New("t5", zerolog.Nop())
	// No Spawn call: GetScreen must trigger its own spawn-and-retry path.
	screen, err := p.GetScreen(24, 80)
	require.NoError(t, err)
	require.NotNil(t, screen.Lines)
}
