package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcbase/marcbase/internal/bus"
	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/stream"
)

// ReindexEventType is the event type published for every record id during a
// reindex job.
const ReindexEventType = "REINDEX"

// ReindexTopicDomain is the topic domain reindex events are published under.
const ReindexTopicDomain = "reindex"

func (r *JobRunner) reindexStages(job *model.BulkJob) ([]stage, error) {
	var params model.ReindexParameters
	if err := decodeParameters(job.Parameters, &params); err != nil {
		return nil, err
	}
	if !params.RecordKind.Valid() {
		return nil, fmt.Errorf("invalid record kind: %q", params.RecordKind)
	}

	open := func(ctx context.Context, onConfirm func()) (stageIO, error) {
		src, err := r.rows.OpenIDStream(ctx, job.Tenant, params.RecordKind)
		if err != nil {
			return stageIO{}, fmt.Errorf("open id stream: %w", err)
		}

		sink, err := r.sinks.NewEventSink(core.EventSinkParams{
			Tenant:    job.Tenant,
			Topic:     bus.TopicName(job.Tenant, ReindexTopicDomain),
			OnConfirm: onConfirm,
		})
		if err != nil {
			_ = src.Close()
			return stageIO{}, fmt.Errorf("open event sink: %w", err)
		}

		transform := func(row stream.Row) (stream.Item, bool, error) {
			payload, err := json.Marshal(recordEvent{
				ID:         row.ID,
				Type:       ReindexEventType,
				Tenant:     job.Tenant,
				JobID:      job.ID,
				RecordKind: string(params.RecordKind),
			})
			if err != nil {
				return stream.Item{}, false, fmt.Errorf("marshal reindex event: %w", err)
			}
			return stream.Item{Key: row.ID, Payload: payload}, true, nil
		}

		return stageIO{source: src, sink: sink, transform: transform}, nil
	}

	return []stage{{open: open}}, nil
}
