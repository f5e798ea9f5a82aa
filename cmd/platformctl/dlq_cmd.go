package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newDLQCommand exposes the human-triggered DLQ/quarantine replay the
// spec's Open Questions resolve: dead-letter handling is manual
// intervention, never automatic (spec §9).
func newDLQCommand() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "operator-triggered dead-letter and quarantine recovery",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Postgres DSN for the service's outbox database")

	replay := &cobra.Command{
		Use:   "replay <event-id>",
		Short: "clear the quarantine flag on one outbox row so the dispatcher retries it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("platformctl: invalid event id %q: %w", args[0], err)
			}

			store, db, err := openOutboxStore(dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Unquarantine(cmd.Context(), eventID); err != nil {
				return fmt.Errorf("platformctl: unquarantine %s: %w", eventID, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "event_id=%s unquarantined, will be re-leased by the dispatcher\n", eventID)

			return nil
		},
	}

	cmd.AddCommand(replay)

	return cmd
}
