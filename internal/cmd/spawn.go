package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"h2mux/internal/logging"
	"h2mux/internal/statedir"
	"h2mux/internal/tabclient"
)

func newSpawnCmd() *cobra.Command {
	var rows, cols int
	var shell, cwd string

	cmd := &cobra.Command{
		Use:   "spawn [tab_id]",
		Short: "Spawn a new PTY tab on the daemon (or confirm one already exists)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tabID := uuid.New().String()
			if len(args) == 1 {
				tabID = args[0]
			}

			log, err := logging.New(statedir.ClientLogPath(), logging.LevelInfo)
			if err != nil {
				return fmt.Errorf("open client log: %w", err)
			}
			p := tabclient.New(tabID, log)
			if err := p.Spawn(rows, cols, cwd, shell, nil); err != nil {
				return fmt.Errorf("spawn %s: %w", tabID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", tabID)
			return nil
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 24, "PTY rows")
	cmd.Flags().IntVar(&cols, "cols", 80, "PTY columns")
	cmd.Flags().StringVar(&shell, "shell", "", "shell to run (defaults to $SHELL on the daemon)")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the new tab")

	return cmd
}
