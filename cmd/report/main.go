// Command report reads the portfolio ledger and prints holdings, capital
// gains and related data as JSON on stdout. Logs go to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"mf-portfolio-go/internal/app"
	"mf-portfolio-go/internal/config"
	"mf-portfolio-go/internal/logger"

	"github.com/google/subcommands"
	"go.uber.org/zap"
)

var configDir = flag.String("config", "./configs", "Directory containing config.yml.")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	for _, c := range reportCommands {
		commander.Register(c, "report")
	}
	for _, c := range ledgerCommands {
		commander.Register(c, "ledger")
	}
	for _, c := range sourceCommands {
		commander.Register(c, "nav source")
	}

	flag.Parse()

	os.Exit(int(runCommander(commander, &env{configDir: *configDir})))
}

// runCommander executes the selected command and releases e before
// returning, so that main can exit without skipping the cleanup.
func runCommander(commander *subcommands.Commander, e *env) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer e.close()
	return commander.Execute(ctx, e)
}

// env loads configuration and wires the application on first use, so that
// help and usage output never touch the database.
type env struct {
	configDir string
	log       *zap.Logger
	app       *app.App
}

func (e *env) open(ctx context.Context) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	cfg, err := config.LoadConfig(e.configDir)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}
	e.log, err = logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return nil, err
	}
	e.app, err = app.New(ctx, &cfg, e.log)
	if err != nil {
		return nil, err
	}
	return e.app, nil
}

// close flushes the logger and closes the database, if they were opened.
func (e *env) close() {
	if e.app != nil && e.app.DB != nil {
		if sqlDB, err := e.app.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if e.log != nil {
		_ = e.log.Sync()
	}
}

// run opens the application and calls fn with it, translating errors into
// exit statuses.
func run(ctx context.Context, args []interface{}, fn func(*app.App) error) subcommands.ExitStatus {
	e := args[0].(*env)
	a, err := e.open(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	if err := fn(a); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
