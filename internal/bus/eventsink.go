// Package bus implements the event sink side of the bulk job engine over
// Redis Streams: asynchronous publishing with bounded in-flight capacity,
// retry with exponential backoff, and dead-letter recording for publishes
// that exhaust their retries.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
	"github.com/marcbase/marcbase/internal/stream"
)

// StreamAdder is the narrow slice of the Redis client the sink needs.
// redis.UniversalClient satisfies it.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

const (
	defaultHighWater  = 256
	defaultLowWater   = 64
	defaultMaxRetries = 5
)

// EventSinkOptions groups dependencies for an EventSink.
type EventSinkOptions struct {
	Client      StreamAdder                  // Required: Redis stream client
	Topic       string                       // Required: destination stream key
	Tenant      string                       // Required: tenant the events belong to
	DeadLetters core.FailedPublishRepository // Required: dead-letter store
	OnConfirm   func()                       // Optional: per-item acceptance callback
	Headers     map[string]string            // Optional: headers added to every event
	HighWater   int                          // Optional: queue length at which Full reports true
	LowWater    int                          // Optional: queue length at which the drain callback fires
	MaxRetries  int                          // Optional: publish attempts before dead-lettering
	MaxInterval time.Duration                // Optional: backoff cap between attempts
	Logger      *slog.Logger                 // Optional: structured logger
}

// EventSink publishes one message per offered item to a named topic. Offer is
// asynchronous: items are queued and a background publisher drains the queue,
// so acceptance confirmation (and therefore the published counter) may lag
// the processed counter.
//
// A publish failure after retries are exhausted does not fail the job: the
// sink writes a FailedPublish record and confirms the item as accepted. Only
// a failure to write the dead-letter record itself is fatal, surfaced through
// the next Offer call; the caller never sees raw transport errors.
type EventSink struct {
	client      StreamAdder
	topic       string
	tenant      string
	deadLetters core.FailedPublishRepository
	onConfirm   func()
	headers     map[string]string
	highWater   int
	lowWater    int
	maxRetries  int
	maxInterval time.Duration
	logger      *slog.Logger

	queue chan stream.Item

	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	drainFn func()
	fatal   error
	closed  bool

	wg sync.WaitGroup
}

var (
	_ stream.Sink    = (*EventSink)(nil)
	_ stream.Flusher = (*EventSink)(nil)
)

// NewEventSink constructs and starts an EventSink.
func NewEventSink(opts EventSinkOptions) (*EventSink, error) {
	if opts.Client == nil {
		return nil, errors.New("stream client is required")
	}
	if opts.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if opts.DeadLetters == nil {
		return nil, errors.New("dead-letter repository is required")
	}

	highWater := opts.HighWater
	if highWater <= 0 {
		highWater = defaultHighWater
	}
	lowWater := opts.LowWater
	if lowWater <= 0 || lowWater >= highWater {
		lowWater = highWater / 4
		if lowWater == 0 {
			lowWater = defaultLowWater
			if lowWater >= highWater {
				lowWater = highWater - 1
			}
		}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxInterval := opts.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &EventSink{
		client:      opts.Client,
		topic:       opts.Topic,
		tenant:      opts.Tenant,
		deadLetters: opts.DeadLetters,
		onConfirm:   opts.OnConfirm,
		headers:     opts.Headers,
		highWater:   highWater,
		lowWater:    lowWater,
		maxRetries:  maxRetries,
		maxInterval: maxInterval,
		logger:      logger.With("component", "event_sink", "topic", opts.Topic),
		queue:       make(chan stream.Item, highWater),
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(1)
	go s.publishLoop()

	return s, nil
}

// Offer queues one item for publishing. It reports full/closed/fatal
// conditions; a nil return means the item will eventually be confirmed.
func (s *EventSink) Offer(ctx context.Context, item stream.Item) error {
	s.mu.Lock()
	if s.fatal != nil {
		err := s.fatal
		s.mu.Unlock()
		return err
	}
	if s.closed {
		s.mu.Unlock()
		return stream.ErrSinkClosed
	}
	s.pending++
	s.mu.Unlock()

	select {
	case s.queue <- item:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		s.pending--
		s.cond.Broadcast()
		s.mu.Unlock()
		return ctx.Err()
	}
}

// Full reports whether the in-flight queue reached its high watermark.
func (s *EventSink) Full() bool {
	return len(s.queue) >= s.highWater
}

// OnDrain registers a one-shot callback fired when the queue sinks to the low
// watermark. If capacity is already available the callback fires immediately,
// so a caller that saw Full()==true cannot miss the drain that happened in
// between.
func (s *EventSink) OnDrain(fn func()) {
	s.mu.Lock()
	if len(s.queue) <= s.lowWater {
		s.mu.Unlock()
		fn()
		return
	}
	s.drainFn = fn
	s.mu.Unlock()
}

// Flush blocks until every accepted item has been confirmed.
func (s *EventSink) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		for s.pending > 0 {
			s.cond.Wait()
		}
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.mu.Lock()
		err := s.fatal
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting items and waits for the publisher to drain what was
// already accepted. Closing twice is a no-op.
func (s *EventSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.queue)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *EventSink) publishLoop() {
	defer s.wg.Done()

	ctx := context.Background()
	for item := range s.queue {
		s.publishOne(ctx, item)

		s.mu.Lock()
		s.pending--
		s.cond.Broadcast()
		var fire func()
		if s.drainFn != nil && len(s.queue) <= s.lowWater {
			fire = s.drainFn
			s.drainFn = nil
		}
		s.mu.Unlock()

		if fire != nil {
			fire()
		}
	}
}

func (s *EventSink) publishOne(ctx context.Context, item stream.Item) {
	publishErr := s.publishWithRetry(ctx, item)
	if publishErr != nil {
		s.logger.Warn("publish retries exhausted, recording dead letter",
			"key", item.Key, "error", publishErr)
		if dlErr := s.recordDeadLetter(ctx, item, publishErr); dlErr != nil {
			s.mu.Lock()
			if s.fatal == nil {
				s.fatal = fmt.Errorf("record failed publish: %w", dlErr)
			}
			s.mu.Unlock()
			s.logger.Error("unable to record dead letter", "key", item.Key, "error", dlErr)
			return
		}
	}

	// Dead-lettered items still count as accepted so the job can proceed.
	if s.onConfirm != nil {
		s.onConfirm()
	}
}

func (s *EventSink) publishWithRetry(ctx context.Context, item stream.Item) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 50 * time.Millisecond
	expo.MaxInterval = s.maxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.client.XAdd(ctx, s.xaddArgs(item)).Err()
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(uint(s.maxRetries)))
	return err
}

func (s *EventSink) xaddArgs(item stream.Item) *redis.XAddArgs {
	values := map[string]any{
		"key":     item.Key,
		"payload": string(item.Payload),
		"tenant":  s.tenant,
	}
	for k, v := range s.headers {
		values["h:"+k] = v
	}
	for k, v := range item.Headers {
		values["h:"+k] = v
	}
	return &redis.XAddArgs{Stream: s.topic, Values: values}
}

func (s *EventSink) recordDeadLetter(ctx context.Context, item stream.Item, cause error) error {
	_, err := s.deadLetters.Create(ctx, &model.CreateFailedPublishRequest{
		Tenant:       s.tenant,
		TopicName:    s.topic,
		PartitionKey: item.Key,
		Payload:      string(item.Payload),
		Error:        cause.Error(),
	})
	return err
}
