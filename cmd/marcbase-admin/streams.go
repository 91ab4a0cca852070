package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
)

type inspectStreamsOptions struct {
	Tenant string
	Tail   int
}

func parseInspectStreamsFlags(args []string) (inspectStreamsOptions, error) {
	fs := flag.NewFlagSet("inspect-streams", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts inspectStreamsOptions
	fs.StringVar(&opts.Tenant, "tenant", "", "Optional tenant filter")
	fs.IntVar(&opts.Tail, "tail", 0, "Print the last N entries of each stream")

	if err := fs.Parse(args); err != nil {
		return inspectStreamsOptions{}, err
	}
	if opts.Tail < 0 {
		return inspectStreamsOptions{}, errors.New("--tail must not be negative")
	}
	return opts, nil
}

func runInspectStreams(cmdCtx *commandContext, args []string) error {
	opts, err := parseInspectStreamsFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	pattern := "marcbase.*"
	if opts.Tenant != "" {
		pattern = "marcbase." + opts.Tenant + ".*"
	}
	cmdCtx.Logger.Info("scanning redis", "pattern", pattern)

	keys, err := scanStreamKeys(ctx, redisClient, pattern)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		if writeErr := writeln(os.Stdout, "(no event streams found)"); writeErr != nil {
			return fmt.Errorf("print streams empty notice: %w", writeErr)
		}
		return nil
	}

	if err := renderStreamDepths(ctx, redisClient, keys); err != nil {
		return err
	}
	if opts.Tail > 0 {
		return renderStreamTails(ctx, redisClient, keys, opts.Tail)
	}
	return nil
}

func scanStreamKeys(ctx context.Context, client redis.UniversalClient, pattern string) ([]string, error) {
	var keys []string
	iter := client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func renderStreamDepths(ctx context.Context, client redis.UniversalClient, keys []string) error {
	if err := writef(os.Stdout, "\nEvent Streams\n"); err != nil {
		return fmt.Errorf("print streams header: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Stream\tEntries"); err != nil {
		return fmt.Errorf("print streams table header: %w", err)
	}
	for _, key := range keys {
		length, err := client.XLen(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("xlen %s: %w", key, err)
		}
		if err := writef(w, "%s\t%d\n", key, length); err != nil {
			return fmt.Errorf("print stream row %s: %w", key, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush streams table: %w", err)
	}
	return nil
}

func renderStreamTails(ctx context.Context, client redis.UniversalClient, keys []string, tail int) error {
	for _, key := range keys {
		msgs, err := client.XRevRangeN(ctx, key, "+", "-", int64(tail)).Result()
		if err != nil {
			return fmt.Errorf("xrevrange %s: %w", key, err)
		}
		if len(msgs) == 0 {
			continue
		}

		if err := writef(os.Stdout, "\nLast %d entries of %s:\n", len(msgs), key); err != nil {
			return fmt.Errorf("print tail header %s: %w", key, err)
		}
		// XRevRange returns newest first; print oldest first.
		for i := len(msgs) - 1; i >= 0; i-- {
			msg := msgs[i]
			if err := writef(os.Stdout, "  %s %s\n", msg.ID, formatStreamValues(msg.Values)); err != nil {
				return fmt.Errorf("print tail entry %s: %w", msg.ID, err)
			}
		}
	}
	return nil
}

func formatStreamValues(values map[string]any) string {
	fields := make([]string, 0, len(values))
	for k := range values {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, k := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, values[k]))
	}
	return strings.Join(parts, " ")
}
