package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcbase/marcbase/internal/adapters/reaper"
	"github.com/marcbase/marcbase/internal/bootstrap"
)

type reapOptions struct {
	Timeout time.Duration
	Follow  bool
}

func parseReapFlags(args []string) (reapOptions, error) {
	fs := flag.NewFlagSet("reap", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts reapOptions
	fs.DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "Maximum time for a single cleanup pass")
	fs.BoolVar(&opts.Follow, "follow", false, "Keep running the cleanup loop until interrupted")

	if err := fs.Parse(args); err != nil {
		return reapOptions{}, err
	}
	if !opts.Follow && opts.Timeout <= 0 {
		return reapOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runReap(cmdCtx *commandContext, args []string) error {
	opts, err := parseReapFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cancel context.CancelFunc
	if !opts.Follow {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return reapWithDB(ctx, cmdCtx, db, opts)
}

func reapWithDB(ctx context.Context, cmdCtx *commandContext, db *sql.DB, opts reapOptions) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:     db,
		Config: cmdCtx.Config.Reaper,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("build reaper: %w", err)
	}

	if opts.Follow {
		return runner.Run(ctx)
	}
	if err := runner.RunOnce(ctx); err != nil {
		return fmt.Errorf("reaper pass: %w", err)
	}
	cmdCtx.Logger.Info("reaper pass completed")
	return nil
}
