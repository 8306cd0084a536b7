package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/portal-api/internal/adapters/postgres"
	"github.com/target/portal-api/internal/bootstrap"
	"github.com/target/portal-api/internal/migrate"
	"github.com/target/portal-api/internal/ports"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultPurgeTimeout     = 2 * time.Minute
)

type timeoutOptions struct {
	Timeout time.Duration
}

type migrateOptions struct {
	timeoutOptions
	DryRun bool
}

func parseMigrateFlags(args []string, stderr io.Writer) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := migrateOptions{timeoutOptions: timeoutOptions{Timeout: defaultMigrationTimeout}}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for the command to complete")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "List pending migrations without applying them")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseTimeoutFlags(name string, args []string, def time.Duration, stderr io.Writer) (timeoutOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := timeoutOptions{Timeout: def}
	fs.DurationVar(&opts.Timeout, "timeout", def, "Maximum duration to wait for the command to complete")

	if err := fs.Parse(args); err != nil {
		return timeoutOptions{}, err
	}
	if opts.Timeout <= 0 {
		return timeoutOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args, cmdCtx.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.DryRun {
		return reportPending(ctx, db, cmdCtx.Stdout)
	}

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}
	return writeln(cmdCtx.Stdout, "Migrations applied")
}

func runPurgeSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseTimeoutFlags("purge-sessions", args, defaultPurgeTimeout, cmdCtx.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	n, err := purgeSessions(ctx, postgres.NewSessionStore(db), time.Now(), cmdCtx.Stdout)
	if err != nil {
		return err
	}
	cmdCtx.Logger.Info("purge sessions complete", "rows_deleted", n)
	return nil
}

func reportPending(ctx context.Context, db *sql.DB, out io.Writer) error {
	pending, err := migrate.Pending(ctx, db)
	if err != nil {
		return fmt.Errorf("list pending migrations: %w", err)
	}
	if len(pending) == 0 {
		return writeln(out, "No pending migrations")
	}
	for _, v := range pending {
		if err := writeln(out, v); err != nil {
			return err
		}
	}
	return nil
}

// purgeSessions removes records that expired before now and reports the count.
func purgeSessions(ctx context.Context, store ports.SessionPurger, now time.Time, out io.Writer) (int64, error) {
	n, err := store.PurgeExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	if err := writef(out, "Deleted %d expired sessions\n", n); err != nil {
		return n, fmt.Errorf("print purge summary: %w", err)
	}
	return n, nil
}
