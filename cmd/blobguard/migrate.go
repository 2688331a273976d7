package main

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"blobguard/internal/config"
	"blobguard/internal/store"

	_ "modernc.org/sqlite"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect vault schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !status {
				st, err := store.Open(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("migrate vault: %w", err)
				}
				_ = st.Close()
			}

			plan, err := vaultMigrationPlan(cfg.DBPath)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(plan)
			}

			lines := []string{
				fmt.Sprintf("vault: %s", cfg.DBPath),
				fmt.Sprintf("schema version: %d of %d", plan.CurrentVersion, plan.AvailableVersion),
			}
			if len(plan.Pending) == 0 {
				lines = append(lines, "up to date")
			}
			for _, m := range plan.Pending {
				lines = append(lines, fmt.Sprintf("pending %d: %s", m.Version, m.Description))
			}
			return writeLines(lines)
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "report pending migrations without applying them")
	return cmd
}

func vaultMigrationPlan(path string) (*store.MigrationStatus, error) {
	db, err := openRawDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	plan, err := store.MigrationPlan(db)
	if err != nil {
		return nil, fmt.Errorf("inspect migrations: %w", err)
	}
	return plan, nil
}

func openRawDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return sql.Open("sqlite", u.String())
}
