package cmd

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"h2mux/internal/config"
	"h2mux/internal/daemonsrv"
	"h2mux/internal/statedir"
)

// startDaemon boots a real daemon over a real socket in a fresh temp
// state dir, the same way tabclient's integration tests do.
func startDaemon(t *testing.T) {
	t.Helper()
	dir, err := os.MkdirTemp("", "h2muxcmdtest-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv("H2MUX_DIR", dir)

	d := daemonsrv.New(zerolog.Nop(), config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	t.Cleanup(cancel)

	sockPath := statedir.SocketPath()
	for i := 0; i < 100; i++ {
		if _, err := os.Stat(sockPath); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("daemon did not start")
}

func TestLsCmd_NoTabs(t *testing.T) {
	startDaemon(t)

	var out bytes.Buffer
	cmd := newLsCmd()
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	require.Equal(t, "no tabs\n", out.String())
}

func TestSpawnCmd_GeneratesIDWhenOmitted(t *testing.T) {
	startDaemon(t)

	var out bytes.Buffer
	cmd := newSpawnCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--rows", "10", "--cols", "40"})
	require.NoError(t, cmd.Execute())

	tabID := strings.TrimSpace(out.String())
	require.NotEmpty(t, tabID)

	lsOut := bytes.Buffer{}
	ls := newLsCmd()
	ls.SetOut(&lsOut)
	require.NoError(t, ls.Execute())
	require.Contains(t, lsOut.String(), tabID)
}

func TestSpawnCmd_ExplicitTabID(t *testing.T) {
	startDaemon(t)

	var out bytes.Buffer
	cmd := newSpawnCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"my-tab", "--rows", "10", "--cols", "40"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "my-tab\n", out.String())
}

func TestSpawnCmd_TooManyArgs(t *testing.T) {
	startDaemon(t)

	cmd := newSpawnCmd()
	cmd.SetArgs([]string{"a", "b"})
	require.Error(t, cmd.Execute())
}

func TestStatusFlag_NotRunning(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("H2MUX_DIR", dir)

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--status"})
	require.NoError(t, root.Execute())
	require.Equal(t, "not running\n", out.String())
}

func TestStatusFlag_Running(t *testing.T) {
	startDaemon(t)

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--status"})
	require.NoError(t, root.Execute())
	require.Equal(t, "running\n", out.String())
}

func TestVersionFlag(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})
	require.NoError(t, root.Execute())
	require.NotEmpty(t, strings.TrimSpace(out.String()))
}
