package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/target/portal-api/config"
	"github.com/target/portal-api/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	// needsConfig loads and validates the environment before run.
	needsConfig bool
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func main() {
	logger := bootstrap.InitLogger(slog.LevelInfo)
	os.Exit(runCLI(os.Args[1:], &commandContext{ //nolint:forbidigo // CLI must propagate its exit status
		Ctx:    context.Background(),
		Logger: logger,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, bootstrap.LoadConfig))
}

// runCLI dispatches args to a command and returns the process exit code:
// 2 for usage errors, 1 for configuration or command failures.
func runCLI(args []string, cmdCtx *commandContext, loadConfig func() (config.AppConfig, error)) int {
	if len(args) < 1 {
		if err := printUsage(cmdCtx.Stderr); err != nil {
			cmdCtx.Logger.Error("print usage failed", "error", err)
		}
		return 2
	}

	cmdName := args[0]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(cmdCtx.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			cmdCtx.Logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(cmdCtx.Stderr); err != nil {
			cmdCtx.Logger.Error("print usage failed", "error", err)
		}
		return 2
	}

	if cmd.needsConfig {
		cfg, err := loadConfig()
		if err != nil {
			cmdCtx.Logger.ErrorContext(cmdCtx.Ctx, "load config", "error", err)
			return 1
		}
		cmdCtx.Config = cfg
	}

	if runErr := cmd.run(cmdCtx, args[1:]); runErr != nil {
		cmdCtx.Logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		return 1
	}
	return 0
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Apply the embedded Postgres session-table migrations",
			needsConfig: true,
			run:         runMigrations,
		},
		"purge-sessions": {
			name:        "purge-sessions",
			description: "Delete expired rows from the Postgres session table",
			needsConfig: true,
			run:         runPurgeSessions,
		},
		"gen-secret": {
			name:        "gen-secret",
			description: "Print a random value for SESSION_SECRET or SESSION_TOKEN_ENCRYPTION_KEY",
			run:         runGenSecret,
		},
		"decrypt-token": {
			name:        "decrypt-token",
			description: "Decrypt a stored provider token read from stdin",
			needsConfig: true,
			run:         runDecryptToken,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: portal-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(w, "  %-16s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
