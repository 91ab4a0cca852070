package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/marcbase/marcbase/internal/bus"
	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/stream"
)

func (r *JobRunner) iterationStages(job *model.BulkJob) ([]stage, error) {
	var params model.IterationParameters
	if err := decodeParameters(job.Parameters, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.TopicName) == "" {
		return nil, errors.New("topic name is required")
	}
	if strings.TrimSpace(params.EventType) == "" {
		return nil, errors.New("event type is required")
	}

	filter := strings.TrimSpace(params.Filter)
	if filter != "" {
		if _, err := jmespath.Compile(filter); err != nil {
			return nil, fmt.Errorf("invalid filter expression: %w", err)
		}
	}

	open := func(ctx context.Context, onConfirm func()) (stageIO, error) {
		// A filter needs the document body; without one the cheaper id-only
		// cursor suffices.
		var src stream.RowStream
		var err error
		if filter != "" {
			src, err = r.rows.OpenRecordStream(ctx, job.Tenant, &model.RecordListOptions{})
		} else {
			src, err = r.rows.OpenIDStream(ctx, job.Tenant, model.RecordKindInstance)
		}
		if err != nil {
			return stageIO{}, fmt.Errorf("open row stream: %w", err)
		}

		sink, err := r.sinks.NewEventSink(core.EventSinkParams{
			Tenant:    job.Tenant,
			Topic:     bus.TopicName(job.Tenant, params.TopicName),
			OnConfirm: onConfirm,
		})
		if err != nil {
			_ = src.Close()
			return stageIO{}, fmt.Errorf("open event sink: %w", err)
		}

		transform := func(row stream.Row) (stream.Item, bool, error) {
			if filter != "" {
				keep, filterErr := evaluateFilter(filter, row.Document)
				if filterErr != nil {
					return stream.Item{}, false, filterErr
				}
				if !keep {
					return stream.Item{}, false, nil
				}
			}

			payload, marshalErr := json.Marshal(recordEvent{
				ID:     row.ID,
				Type:   params.EventType,
				Tenant: job.Tenant,
				JobID:  job.ID,
			})
			if marshalErr != nil {
				return stream.Item{}, false, fmt.Errorf("marshal iteration event: %w", marshalErr)
			}
			return stream.Item{Key: row.ID, Payload: payload}, true, nil
		}

		return stageIO{source: src, sink: sink, transform: transform}, nil
	}

	return []stage{{open: open}}, nil
}

// evaluateFilter applies a JMESPath expression to a record document and
// reports whether the row should be published. JMESPath truthiness: null,
// false, empty string, empty array, and empty object are all falsy.
func evaluateFilter(expr string, document []byte) (bool, error) {
	if len(document) == 0 {
		return false, nil
	}

	var data any
	if err := json.Unmarshal(document, &data); err != nil {
		return false, fmt.Errorf("invalid record document: %w", err)
	}

	result, err := jmespath.Search(expr, data)
	if err != nil {
		return false, fmt.Errorf("evaluate filter: %w", err)
	}
	return jmespathTruthy(result), nil
}

func jmespathTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
