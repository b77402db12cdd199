package daemonsrv

import (
	"bytes"
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"h2mux/internal/config"
	"h2mux/internal/protocol"
	"h2mux/internal/statedir"
	"h2mux/internal/termemu"
)

// shortTempDir mirrors the teacher's own helper: a dedicated temp dir per
// test so H2MUX_DIR overrides don't collide across the package.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "h2muxtest-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s did not appear", path)
}

// startDaemon boots a real Daemon over a real socket in a temp dir and
// returns its socket path plus a teardown func, following the teacher's own
// real-socket-not-mocks integration style.
func startDaemon(t *testing.T) (sockPath string, teardown func()) {
	t.Helper()
	dir := shortTempDir(t)
	os.Setenv("H2MUX_DIR", dir)

	d := New(zerolog.Nop(), config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	sockPath = statedir.SocketPath()
	waitForSocket(t, sockPath)

	return sockPath, func() {
		cancel()
		<-errCh
		os.Unsetenv("H2MUX_DIR")
	}
}

func dial(t *testing.T, sockPath string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	return conn
}

func send(t *testing.T, conn net.Conn, env protocol.Envelope) {
	t.Helper()
	require.NoError(t, protocol.WriteJSONLine(conn, env))
}

func recv(t *testing.T, conn net.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	env, err := protocol.NewReader(conn).ReadEnvelope()
	require.NoError(t, err)
	return env
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

func screenContains(s protocol.ScreenMsg, want string) bool {
	for _, line := range s.Content.Lines {
		if bytes.Contains([]byte(lineText(line)), []byte(want)) {
			return true
		}
	}
	return false
}

func TestSpawnThenInputEchoesIntoScreen(t *testing.T) {
	sockPath, teardown := startDaemon(t)
	defer teardown()

	conn := dial(t, sockPath)
	defer conn.Close()

	send(t, conn, protocol.Envelope{Kind: protocol.KindSpawn, Spawn: &protocol.Spawn{TabID: "t1", Rows: 24, Cols: 80}})
	welcome := recv(t, conn)
	require.Equal(t, protocol.KindWelcome, welcome.Kind)

	send(t, conn, protocol.Envelope{Kind: protocol.KindInput, Input: &protocol.Input{TabID: "t1", Data: []byte("echo hi\r")}})
	time.Sleep(500 * time.Millisecond)

	send(t, conn, protocol.Envelope{Kind: protocol.KindGetScreen, GetScreen: &protocol.GetScreen{TabID: "t1", Rows: 24, Cols: 80}})
	resp := recv(t, conn)
	require.Equal(t, protocol.KindScreen, resp.Kind)
	require.NotNil(t, resp.Screen)
	require.True(t, screenContains(*resp.Screen, "hi"), "expected echoed output to contain 'hi', got %+v", resp.Screen.Content.Lines)
}

func TestIdempotentSpawnReturnsAlreadyExists(t *testing.T) {
	sockPath, teardown := startDaemon(t)
	defer teardown()

	conn := dial(t, sockPath)
	defer conn.Close()

	send(t, conn, protocol.Envelope{Kind: protocol.KindSpawn, Spawn: &protocol.Spawn{TabID: "t2", Rows: 24, Cols: 80}})
	first := recv(t, conn)
	require.NotNil(t, first.Welcome)
	require.NotEqual(t, "already exists", first.Welcome.Version)

	send(t, conn, protocol.Envelope{Kind: protocol.KindSpawn, Spawn: &protocol.Spawn{TabID: "t2", Rows: 24, Cols: 80}})
	second := recv(t, conn)
	require.NotNil(t, second.Welcome)
	require.Equal(t, "already exists", second.Welcome.Version)
}

func TestTabPersistsAcrossReconnect(t *testing.T) {
	sockPath, teardown := startDaemon(t)
	defer teardown()

	connA := dial(t, sockPath)
	send(t, connA, protocol.Envelope{Kind: protocol.KindSpawn, Spawn: &protocol.Spawn{TabID: "t3", Rows: 24, Cols: 80}})
	recv(t, connA)
	send(t, connA, protocol.Envelope{Kind: protocol.KindInput, Input: &protocol.Input{TabID: "t3", Data: []byte("echo X\r")}})
	time.Sleep(200 * time.Millisecond)
	connA.Close()

	time.Sleep(200 * time.Millisecond)

	connB := dial(t, sockPath)
	defer connB.Close()
	send(t, connB, protocol.Envelope{Kind: protocol.KindSpawn, Spawn: &protocol.Spawn{TabID: "t3", Rows: 24, Cols: 80}})
	welcome := recv(t, connB)
	require.NotNil(t, welcome.Welcome)
	require.Equal(t, "already exists", welcome.Welcome.Version)

	send(t, connB, protocol.Envelope{Kind: protocol.KindGetScreen, GetScreen: &protocol.GetScreen{TabID: "t3", Rows: 24, Cols: 80}})
	resp := recv(t, connB)
	require.NotNil(t, resp.Screen)
	require.True(t, screenContains(*resp.Screen, "X"))
}

func TestResizeInFixedStrategyPreservesContent(t *testing.T) {
	sockPath, teardown := startDaemon(t)
	defer teardown()

	conn := dial(t, sockPath)
	defer conn.Close()

	send(t, conn, protocol.Envelope{Kind: protocol.KindSpawn, Spawn: &protocol.Spawn{TabID: "t4", Rows: 24, Cols: 80}})
	recv(t, conn)
	send(t, conn, protocol.Envelope{Kind: protocol.KindInput, Input: &protocol.Input{TabID: "t4", Data: []byte("echo keep\r")}})
	time.Sleep(300 * time.Millisecond)

	send(t, conn, protocol.Envelope{Kind: protocol.KindResize, Resize: &protocol.Resize{TabID: "t4", Rows: 30, Cols: 100}})
	time.Sleep(50 * time.Millisecond)

	send(t, conn, protocol.Envelope{Kind: protocol.KindGetScreen, GetScreen: &protocol.GetScreen{TabID: "t4", Rows: 30, Cols: 100}})
	resp := recv(t, conn)
	require.NotNil(t, resp.Screen)
	require.True(t, screenContains(*resp.Screen, "keep"))
}

func TestSubscribePushesDiffAfterInput(t *testing.T) {
	sockPath, teardown := startDaemon(t)
	defer teardown()

	spawnConn := dial(t, sockPath)
	send(t, spawnConn, protocol.Envelope{Kind: protocol.KindSpawn, Spawn: &protocol.Spawn{TabID: "t5", Rows: 24, Cols: 80}})
	recv(t, spawnConn)
	spawnConn.Close()

	conn := dial(t, sockPath)
	defer conn.Close()
	send(t, conn, protocol.Envelope{Kind: protocol.KindSubscribe, Subscribe: &protocol.Subscribe{TabID: "t5", Rows: 24, Cols: 80}})
	baseline := recv(t, conn)
	require.Equal(t, protocol.KindScreen, baseline.Kind)

	send(t, conn, protocol.Envelope{Kind: protocol.KindInput, Input: &protocol.Input{TabID: "t5", Data: []byte("a\r")}})

	for i := 0; i < 10; i++ {
		next := recv(t, conn)
		if next.Kind == protocol.KindScreenDiff && next.ScreenDiff != nil {
			for _, cl := range next.ScreenDiff.ChangedLines {
				if bytes.Contains([]byte(lineText(cl.Line)), []byte("a")) {
					return
				}
			}
		}
	}
	t.Fatal("did not observe a ScreenDiff containing the echoed input")
}

func TestSubscribeUnknownTabReturnsNotFound(t *testing.T) {
	sockPath, teardown := startDaemon(t)
	defer teardown()

	conn := dial(t, sockPath)
	defer conn.Close()

	send(t, conn, protocol.Envelope{Kind: protocol.KindSubscribe, Subscribe: &protocol.Subscribe{TabID: "nope", Rows: 24, Cols: 80}})
	resp := recv(t, conn)
	require.Equal(t, protocol.KindError, resp.Kind)
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.ErrTabNotFound, resp.Error.Message)
}
