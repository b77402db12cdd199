// Package statedir centralizes the per-user state directory layout: one
// daemon owns one socket, one pid file, one lock file, and two log files
// (§6). Adapted from socketdir.Dir/Path, collapsed from socketdir's
// multi-name-per-type scheme since this daemon is a single process, not
// one process per agent name.
package statedir

import (
	"os"
	"path/filepath"
)

// Dir returns the state directory: ~/.h2mux/
func Dir() string {
	if d := os.Getenv("H2MUX_DIR"); d != "" {
		return d
	}
	return filepath.Join(os.Getenv("HOME"), ".h2mux")
}

// Ensure creates the state directory with owner-only permissions.
func Ensure() error {
	return os.MkdirAll(Dir(), 0o700)
}

func SocketPath() string { return filepath.Join(Dir(), "daemon.sock") }
func PIDPath() string    { return filepath.Join(Dir(), "daemon.pid") }
func LockPath() string   { return filepath.Join(Dir(), "daemon.lock") }
func DaemonLogPath() string { return filepath.Join(Dir(), "daemon.log") }
func ClientLogPath() string { return filepath.Join(Dir(), "client.log") }
func ConfigPath() string    { return filepath.Join(Dir(), "config.yaml") }
