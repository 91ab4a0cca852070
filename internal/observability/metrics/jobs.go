package metrics

import (
	"time"

	obserrors "github.com/marcbase/marcbase/internal/observability/errors"
	"github.com/marcbase/marcbase/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultCancelled = "cancelled"
	ResultNoop      = "noop"
)

// JobMetric captures details about a bulk job lifecycle event for metric emission.
type JobMetric struct {
	Tenant     string
	JobKind    string
	Transition string
	Result     string
	Processed  int64
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised bulk job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"tenant":     in.Tenant,
		"job_kind":   in.JobKind,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("bulk_job.transition", 1, tags)

	if in.Processed > 0 {
		sink.Count("bulk_job.rows_processed", in.Processed, CloneTags(tags))
	}

	if in.Duration > 0 {
		sink.Timing("bulk_job.duration", in.Duration, CloneTags(tags))
	}
}

// PublishMetric captures details about one event publish outcome.
type PublishMetric struct {
	Tenant    string
	Topic     string
	DeadLetter bool
	Err       error
}

// EmitPublish emits a per-event publish outcome metric.
func EmitPublish(sink statsd.Sink, in PublishMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	if in.DeadLetter {
		result = ResultError
	}

	tags := map[string]string{
		"tenant": in.Tenant,
		"topic":  in.Topic,
		"result": result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("event.publish", 1, tags)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
