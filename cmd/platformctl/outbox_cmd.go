package main

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nimbusline/platform-core/internal/outbox"
)

func openOutboxStore(dsn string) (*outbox.Store, *sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("platformctl: open database: %w", err)
	}

	return outbox.New(db), db, nil
}

func newOutboxCommand() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "inspect a service's outbox health",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Postgres DSN for the service's outbox database")

	depth := &cobra.Command{
		Use:   "depth",
		Short: "print the unpublished outbox row count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openOutboxStore(dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			count, err := store.UnpublishedDepth(cmd.Context())
			if err != nil {
				return fmt.Errorf("platformctl: unpublished depth: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "unpublished_depth=%d\n", count)

			return nil
		},
	}

	quarantined := &cobra.Command{
		Use:   "quarantined",
		Short: "list rows parked in the poison queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openOutboxStore(dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := store.QuarantinedRows(cmd.Context(), 100)
			if err != nil {
				return fmt.Errorf("platformctl: list quarantined rows: %w", err)
			}

			for _, row := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "event_id=%s aggregate_id=%s attempts=%d\n", row.EventID, row.AggregateID, row.PublishAttempts)
			}

			return nil
		},
	}

	cmd.AddCommand(depth, quarantined)

	return cmd
}
