// Command platformctl is the operator CLI the supplemented §12 of
// SPEC_FULL.md calls for: it loads and validates the Ownership
// Registry, reports outbox health, and exposes the human-triggered DLQ
// replay / quarantine-clear operations spec §9's Open Questions
// resolve as manual-only. It speaks only to a service's own Postgres
// database; it never goes behind the boundary layer itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platformctl",
		Short: "platformctl inspects and operates the service-boundary substrate",
	}

	cmd.AddCommand(newRegistryCommand())
	cmd.AddCommand(newOutboxCommand())
	cmd.AddCommand(newDLQCommand())

	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
