// Package cmd wires the cobra command tree for the h2mux binary: daemon
// lifecycle flags on the root command (§6), plus spawn/attach/ls
// subcommands for the client side. Adapted from the teacher's
// internal/cmd/root.go (NewRootCmd assembling subcommands) and
// internal/cmd/run.go + internal/session/daemon.go's ForkDaemon
// (self re-exec with a hidden daemon subcommand, detached stdio).
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"h2mux/internal/version"
)

// NewRootCmd builds the root command. Flags mirror §6's daemon CLI
// surface (--daemon, --foreground, --status, --version); subcommands
// cover the client-facing tab operations.
func NewRootCmd() *cobra.Command {
	var daemonFlag bool
	var foregroundFlag bool
	var statusFlag bool
	var versionFlag bool

	root := &cobra.Command{
		Use:   "h2mux",
		Short: "Persistent terminal multiplexer client/daemon",
		Long:  "h2mux keeps PTYs alive in a daemon process while short-lived clients attach, detach, and reconnect.",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case versionFlag:
				fmt.Fprintln(cmd.OutOrStdout(), version.DisplayVersion())
				return nil
			case statusFlag:
				return runStatus(cmd)
			case daemonFlag:
				return runDaemonFlag(cmd, foregroundFlag)
			default:
				return cmd.Help()
			}
		},
	}

	root.Flags().BoolVar(&daemonFlag, "daemon", false, "start the daemon (detached unless --foreground)")
	root.Flags().BoolVar(&foregroundFlag, "foreground", false, "run the daemon in the foreground instead of detaching")
	root.Flags().BoolVar(&statusFlag, "status", false, "report whether the daemon is running")
	root.Flags().BoolVar(&versionFlag, "version", false, "print the version and exit")

	root.AddCommand(
		newDaemonInternalCmd(),
		newSpawnCmd(),
		newAttachCmd(),
		newLsCmd(),
	)

	return root
}
