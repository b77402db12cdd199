// Command h2mux is the persistent terminal multiplexer's single binary:
// it starts/queries the daemon (--daemon, --status, --version) and
// drives tabs as a client (spawn, attach, ls), per §6.
package main

import (
	"fmt"
	"os"

	"h2mux/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
