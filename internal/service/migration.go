package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/marcbase/marcbase/internal/bus"
	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/stream"
)

// MigrationTopicDomain is the topic domain migration events are published
// under. Consumers apply the named migration to the records whose ids arrive
// on it.
const MigrationTopicDomain = "migration"

// migrationDef describes one runnable data migration.
type migrationDef struct {
	// recordKind selects which records the migration iterates.
	recordKind model.RecordKind
}

// migrationDefs is the registry of known migration names. A submitted job
// naming anything else is rejected before any rows move.
var migrationDefs = map[string]migrationDef{
	"publicationPeriodMigration": {recordKind: model.RecordKindInstance},
	"subjectSeriesMigration":     {recordKind: model.RecordKindInstance},
	"itemShelvingOrderMigration": {recordKind: model.RecordKindItem},
}

// KnownMigrations returns the sorted names of all runnable migrations.
func KnownMigrations() []string {
	names := make([]string, 0, len(migrationDefs))
	for name := range migrationDefs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateMigrationNames checks each name against the migration registry and
// returns an error naming the first unknown one.
func ValidateMigrationNames(names []string) error {
	if len(names) == 0 {
		return errors.New("at least one migration name is required")
	}
	for _, name := range names {
		if _, ok := migrationDefs[name]; !ok {
			return fmt.Errorf("unknown migration: %q (known: %v)", name, KnownMigrations())
		}
	}
	return nil
}

func (r *JobRunner) migrationStages(job *model.BulkJob) ([]stage, error) {
	var params model.MigrationParameters
	if err := decodeParameters(job.Parameters, &params); err != nil {
		return nil, err
	}
	if err := ValidateMigrationNames(params.Migrations); err != nil {
		return nil, err
	}

	stages := make([]stage, 0, len(params.Migrations))
	for _, name := range params.Migrations {
		def := migrationDefs[name]
		stages = append(stages, stage{
			category: name,
			open:     r.openMigrationStage(job, name, def),
		})
	}
	return stages, nil
}

func (r *JobRunner) openMigrationStage(
	job *model.BulkJob,
	name string,
	def migrationDef,
) func(context.Context, func()) (stageIO, error) {
	return func(ctx context.Context, onConfirm func()) (stageIO, error) {
		src, err := r.rows.OpenIDStream(ctx, job.Tenant, def.recordKind)
		if err != nil {
			return stageIO{}, fmt.Errorf("open id stream for %s: %w", name, err)
		}

		sink, err := r.sinks.NewEventSink(core.EventSinkParams{
			Tenant:    job.Tenant,
			Topic:     bus.TopicName(job.Tenant, MigrationTopicDomain),
			OnConfirm: onConfirm,
		})
		if err != nil {
			_ = src.Close()
			return stageIO{}, fmt.Errorf("open event sink for %s: %w", name, err)
		}

		transform := func(row stream.Row) (stream.Item, bool, error) {
			payload, marshalErr := json.Marshal(recordEvent{
				ID:         row.ID,
				Type:       name,
				Tenant:     job.Tenant,
				JobID:      job.ID,
				RecordKind: string(def.recordKind),
			})
			if marshalErr != nil {
				return stream.Item{}, false, fmt.Errorf("marshal migration event: %w", marshalErr)
			}
			return stream.Item{Key: row.ID, Payload: payload}, true, nil
		}

		return stageIO{source: src, sink: sink, transform: transform}, nil
	}
}
