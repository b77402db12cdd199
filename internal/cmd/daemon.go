package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"h2mux/internal/config"
	"h2mux/internal/daemonsrv"
	"h2mux/internal/logging"
	"h2mux/internal/statedir"
)

// newDaemonInternalCmd is the hidden entrypoint the detached child
// re-execs into (grounded on the teacher's hidden "_daemon" subcommand).
// It always runs in the foreground of its own process; the detaching
// happens one level up, in runDaemonFlag.
func newDaemonInternalCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "_daemon",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonForeground()
		},
	}
}

func runDaemonForeground() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := statedir.Ensure(); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	log, err := logging.New(statedir.DaemonLogPath(), logging.Level(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}

	d := daemonsrv.New(log, cfg)
	return d.Run(context.Background())
}

// runDaemonFlag implements --daemon [--foreground]. Foreground runs the
// daemon in this process; otherwise it re-execs itself into the hidden
// _daemon subcommand, detached into its own session, and waits for the
// socket to appear before returning (§6, §7: nonzero on lock contention
// or I/O failure).
func runDaemonFlag(cmd *cobra.Command, foreground bool) error {
	if foreground {
		return runDaemonForeground()
	}

	if conn, err := net.DialTimeout("unix", statedir.SocketPath(), 500*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("h2mux daemon already running")
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open /dev/null: %w", err)
	}
	defer devNull.Close()

	child := exec.Command(exe, "_daemon")
	child.Stdin = devNull
	child.Stdout = devNull
	child.Stderr = devNull
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	go child.Wait()

	sockPath := statedir.SocketPath()
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(sockPath); err == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "daemon started")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not start (socket %s not found)", sockPath)
}

// runStatus reports whether a daemon is reachable over the socket.
func runStatus(cmd *cobra.Command) error {
	sockPath := statedir.SocketPath()
	conn, err := net.DialTimeout("unix", sockPath, 500*time.Millisecond)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "not running")
		return nil
	}
	conn.Close()
	fmt.Fprintln(cmd.OutOrStdout(), "running")
	return nil
}
