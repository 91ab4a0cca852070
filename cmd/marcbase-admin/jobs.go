package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/marcbase/marcbase/internal/data"
	"github.com/marcbase/marcbase/internal/domain/model"
)

type listJobsOptions struct {
	Tenant string
	Kind   string
	Status string
	Limit  int
	Offset int
}

type listFailedPublishOptions struct {
	Tenant string
	Topic  string
	Limit  int
	Offset int
}

type clearFailedPublishOptions struct {
	Tenant string
	Topic  string
	Before time.Duration
	DryRun bool
	Yes    bool
}

func parseListJobsFlags(args []string) (listJobsOptions, error) {
	fs := flag.NewFlagSet("list-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listJobsOptions
	fs.StringVar(&opts.Tenant, "tenant", "", "Tenant to inspect (required)")
	fs.StringVar(&opts.Kind, "kind", "", "Optional job kind filter (reindex, iteration, migration)")
	fs.StringVar(&opts.Status, "status", "", "Optional job status filter")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum jobs to list")
	fs.IntVar(&opts.Offset, "offset", 0, "Listing offset")

	if err := fs.Parse(args); err != nil {
		return listJobsOptions{}, err
	}
	if strings.TrimSpace(opts.Tenant) == "" {
		return listJobsOptions{}, errors.New("--tenant is required")
	}
	return opts, nil
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseListJobsFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	repo := data.NewBulkJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	listOpts := &model.JobListOptions{
		Kind:   model.JobKind(opts.Kind),
		Status: model.JobStatus(opts.Status),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	jobs, err := repo.List(ctx, opts.Tenant, listOpts)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	return renderJobs(opts.Tenant, jobs)
}

func renderJobs(tenant string, jobs []*model.BulkJob) error {
	if err := writef(os.Stdout, "\nBulk Jobs (tenant %s)\n", tenant); err != nil {
		return fmt.Errorf("print jobs header: %w", err)
	}
	if len(jobs) == 0 {
		if err := writeln(os.Stdout, "(no jobs found)"); err != nil {
			return fmt.Errorf("print jobs empty notice: %w", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "ID\tKind\tStatus\tProcessed\tPublished\tSubmitted\tLast Error"); err != nil {
		return fmt.Errorf("print jobs table header: %w", err)
	}
	for _, job := range jobs {
		lastError := ""
		if job.LastError != nil {
			lastError = truncate(*job.LastError, 60)
		}
		if err := writef(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			job.ID,
			job.Kind,
			job.Status,
			job.Processed,
			job.Published,
			job.SubmittedDate.Format(time.RFC3339),
			lastError,
		); err != nil {
			return fmt.Errorf("print job row %s: %w", job.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush jobs table: %w", err)
	}
	return writef(os.Stdout, "\nTotal: %d\n", len(jobs))
}

func parseListFailedPublishFlags(args []string) (listFailedPublishOptions, error) {
	fs := flag.NewFlagSet("list-failed-publishes", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listFailedPublishOptions
	fs.StringVar(&opts.Tenant, "tenant", "", "Tenant to inspect (required)")
	fs.StringVar(&opts.Topic, "topic", "", "Optional topic name filter")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum records to list")
	fs.IntVar(&opts.Offset, "offset", 0, "Listing offset")

	if err := fs.Parse(args); err != nil {
		return listFailedPublishOptions{}, err
	}
	if strings.TrimSpace(opts.Tenant) == "" {
		return listFailedPublishOptions{}, errors.New("--tenant is required")
	}
	return opts, nil
}

func runListFailedPublishes(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFailedPublishFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	repo := data.NewFailedPublishRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	records, err := repo.List(ctx, opts.Tenant, &model.FailedPublishListOptions{
		TopicName: opts.Topic,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		return fmt.Errorf("list failed publishes: %w", err)
	}

	return renderFailedPublishes(opts.Tenant, records)
}

func renderFailedPublishes(tenant string, records []*model.FailedPublish) error {
	if err := writef(os.Stdout, "\nFailed Publishes (tenant %s)\n", tenant); err != nil {
		return fmt.Errorf("print failed publish header: %w", err)
	}
	if len(records) == 0 {
		if err := writeln(os.Stdout, "(no dead-letter records found)"); err != nil {
			return fmt.Errorf("print failed publish empty notice: %w", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "ID\tTopic\tPartition Key\tIncident\tError"); err != nil {
		return fmt.Errorf("print failed publish table header: %w", err)
	}
	for _, rec := range records {
		if err := writef(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			rec.TopicName,
			rec.PartitionKey,
			rec.IncidentDateTime.Format(time.RFC3339),
			truncate(rec.Error, 60),
		); err != nil {
			return fmt.Errorf("print failed publish row %s: %w", rec.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush failed publish table: %w", err)
	}
	return writef(os.Stdout, "\nTotal: %d\n", len(records))
}

func parseClearFailedPublishFlags(args []string) (clearFailedPublishOptions, error) {
	fs := flag.NewFlagSet("clear-failed-publishes", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts clearFailedPublishOptions
	fs.StringVar(&opts.Tenant, "tenant", "", "Tenant to clear (required)")
	fs.StringVar(&opts.Topic, "topic", "", "Optional topic name filter")
	fs.DurationVar(&opts.Before, "older-than", 0, "Only delete records older than this duration (0 deletes all)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return clearFailedPublishOptions{}, err
	}
	if strings.TrimSpace(opts.Tenant) == "" {
		return clearFailedPublishOptions{}, errors.New("--tenant is required")
	}
	return opts, nil
}

func runClearFailedPublishes(cmdCtx *commandContext, args []string) error {
	opts, err := parseClearFailedPublishFlags(args)
	if err != nil {
		return err
	}

	target := fmt.Sprintf("tenant %q", opts.Tenant)
	if opts.Topic != "" {
		target += fmt.Sprintf(", topic %q", opts.Topic)
	}
	if !opts.DryRun {
		if confirmErr := confirmAction(opts.Yes, "delete dead-letter records", target); confirmErr != nil {
			return confirmErr
		}
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	rows, err := deleteFailedPublishRows(ctx, db, opts)
	if err != nil {
		return err
	}

	if opts.DryRun {
		return writef(os.Stdout, "Dry-run: would delete %d dead-letter records\n", rows)
	}
	cmdCtx.Logger.Info("clear failed publishes complete", "tenant", opts.Tenant, "rows_deleted", rows)
	return nil
}

func deleteFailedPublishRows(ctx context.Context, db *sql.DB, opts clearFailedPublishOptions) (int64, error) {
	where := []string{"tenant = $1"}
	args := []any{opts.Tenant}

	if opts.Topic != "" {
		where = append(where, fmt.Sprintf("topic_name = $%d", len(args)+1))
		args = append(args, opts.Topic)
	}
	if opts.Before > 0 {
		where = append(where, fmt.Sprintf("incident_date_time < $%d", len(args)+1))
		args = append(args, time.Now().Add(-opts.Before))
	}

	clause := strings.Join(where, " AND ")
	if opts.DryRun {
		var count int64
		query := "SELECT COUNT(*) FROM failed_publishes WHERE " + clause
		if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return 0, fmt.Errorf("count failed publishes: %w", err)
		}
		return count, nil
	}

	result, err := db.ExecContext(ctx, "DELETE FROM failed_publishes WHERE "+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("delete failed publishes: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rows, nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
