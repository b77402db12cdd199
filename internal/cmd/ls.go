package cmd

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"h2mux/internal/protocol"
	"h2mux/internal/statedir"
)

// oneShotTimeout bounds the short-lived control connections this
// package opens directly (outside of tabclient.Provider), per §5's
// "short read/write timeouts (hundreds of milliseconds)" guidance.
const oneShotTimeout = 300 * time.Millisecond

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List tabs known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(cmd)
		},
	}
}

func runLs(cmd *cobra.Command) error {
	conn, err := net.Dial("unix", statedir.SocketPath())
	if err != nil {
		return fmt.Errorf("dial daemon: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(oneShotTimeout))

	req := protocol.Envelope{Kind: protocol.KindGetProcStatus}
	if err := protocol.WriteJSONLine(conn, req); err != nil {
		return err
	}
	resp, err := protocol.NewReader(conn).ReadEnvelope()
	if err != nil {
		return err
	}
	if resp.ProcessStatus == nil {
		return fmt.Errorf("unexpected reply kind %q", resp.Kind)
	}

	out := cmd.OutOrStdout()
	if len(resp.ProcessStatus.Tabs) == 0 {
		fmt.Fprintln(out, "no tabs")
		return nil
	}
	for _, t := range resp.ProcessStatus.Tabs {
		fmt.Fprintf(out, "%s\tpid=%d\n", t.TabID, t.PID)
	}
	return nil
}
