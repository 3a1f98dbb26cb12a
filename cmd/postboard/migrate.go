package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"postboard/internal/config"
	"postboard/internal/store"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DBDSN == "" {
				return errDSNRequired
			}
			out := cmd.OutOrStdout()

			if inspect || dryRun {
				plan, err := migrationPlan(cfg.DBDSN)
				if err != nil {
					return fmt.Errorf("inspect migrations: %w", err)
				}
				if *jsonOutput {
					return writeJSON(out, plan)
				}
				return writeMigrationPlan(out, plan)
			}

			// Same path the server takes on startup.
			st, err := store.Open(cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			backend := st.Backend()
			if err := st.Close(); err != nil {
				return err
			}

			if *jsonOutput {
				plan, err := migrationPlan(cfg.DBDSN)
				if err != nil {
					return err
				}
				return writeJSON(out, plan)
			}
			return writePlain(out, "Migrations applied successfully (%s).\n", backend)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")

	return cmd
}

func migrationPlan(dsn string) (*store.MigrationStatus, error) {
	db, backend, err := store.OpenRaw(dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return store.MigrationPlan(db, backend)
}

func writeMigrationPlan(w io.Writer, plan *store.MigrationStatus) error {
	if err := writePlain(w, "Backend: %s\nCurrent version: %d\nAvailable version: %d\n",
		plan.Backend, plan.CurrentVersion, plan.AvailableVersion); err != nil {
		return err
	}
	if len(plan.Pending) == 0 {
		return writePlain(w, "No pending migrations.\n")
	}
	if err := writePlain(w, "Pending migrations: %d\n", len(plan.Pending)); err != nil {
		return err
	}
	for _, m := range plan.Pending {
		if err := writePlain(w, "  %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}
