package bus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/stream"
)

// TopicName builds the fully qualified stream key for a tenant-scoped topic,
// e.g. "marcbase.diku.record.instance".
func TopicName(tenant, domain string) string {
	return fmt.Sprintf("marcbase.%s.%s", tenant, domain)
}

// SinkFactoryOptions groups dependencies for a SinkFactory.
type SinkFactoryOptions struct {
	Client      StreamAdder
	DeadLetters core.FailedPublishRepository
	HighWater   int
	LowWater    int
	MaxRetries  int
	MaxInterval time.Duration
	Logger      *slog.Logger
}

// SinkFactory builds per-job event sinks sharing one Redis client and one
// retry/watermark configuration.
type SinkFactory struct {
	opts SinkFactoryOptions
}

var _ core.EventSinkFactory = (*SinkFactory)(nil)

// NewSinkFactory constructs a SinkFactory.
func NewSinkFactory(opts SinkFactoryOptions) *SinkFactory {
	return &SinkFactory{opts: opts}
}

// NewEventSink builds a sink for one topic.
//
//nolint:ireturn // factory satisfies core.EventSinkFactory
func (f *SinkFactory) NewEventSink(p core.EventSinkParams) (stream.Sink, error) {
	return NewEventSink(EventSinkOptions{
		Client:      f.opts.Client,
		Topic:       p.Topic,
		Tenant:      p.Tenant,
		DeadLetters: f.opts.DeadLetters,
		OnConfirm:   p.OnConfirm,
		HighWater:   f.opts.HighWater,
		LowWater:    f.opts.LowWater,
		MaxRetries:  f.opts.MaxRetries,
		MaxInterval: f.opts.MaxInterval,
		Logger:      f.opts.Logger,
	})
}
