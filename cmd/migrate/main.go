// Command migrate applies the expedite database schema.
package main

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/expedite/pkg/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

var databaseEnv = &database.Env{
	URL:      "EXPEDITE_DB_URL",
	Host:     "EXPEDITE_DB_HOST",
	Port:     "EXPEDITE_DB_PORT",
	Name:     "EXPEDITE_DB_NAME",
	User:     "EXPEDITE_DB_USER",
	Password: "EXPEDITE_DB_PASSWORD",
	SSLMode:  "EXPEDITE_DB_SSL_MODE",
}

// resolveURL prefers the flag, then EXPEDITE_DB_URL, then a URL assembled
// from the remaining EXPEDITE_DB_* variables.
func resolveURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}

	cfg := &database.Config{}
	if err := cfg.Finalize(databaseEnv); err != nil {
		return "", fmt.Errorf("no --url and database environment incomplete: %w", err)
	}
	return cfg.ConnString(), nil
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func newRootCommand() *cobra.Command {
	var dbURL string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or inspect the expedite database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbURL, "url", "", "Database URL (default from EXPEDITE_DB_URL or EXPEDITE_DB_*)")

	with := func(fn func(cmd *cobra.Command, m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			target, err := resolveURL(dbURL)
			if err != nil {
				return err
			}
			m, err := newMigrator(target)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(cmd, m, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: with(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				if err := ignoreNoChange(m.Up()); err != nil {
					return fmt.Errorf("up: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert every migration",
			Args:  cobra.NoArgs,
			RunE: with(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				if err := ignoreNoChange(m.Down()); err != nil {
					return fmt.Errorf("down: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations reverted")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations, or revert them when n is negative",
			Args:  cobra.ExactArgs(1),
			RunE: with(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps: want a non-zero integer, got %q", args[0])
				}
				if err := ignoreNoChange(m.Steps(n)); err != nil {
					return fmt.Errorf("steps: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration steps\n", n)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: with(func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
				v, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				if err != nil {
					return fmt.Errorf("version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %d, dirty: %v\n", v, dirty)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: with(func(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("force: invalid version %q", args[0])
				}
				if err := m.Force(v); err != nil {
					return fmt.Errorf("force: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "forced to version %d\n", v)
				return nil
			}),
		},
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
