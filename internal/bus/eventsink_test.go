package bus

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcbase/marcbase/internal/core"
	"github.com/marcbase/marcbase/internal/domain/model"
	jobsmocks "github.com/marcbase/marcbase/internal/mocks/jobs"
	"github.com/marcbase/marcbase/internal/stream"
)

// fakeStreamAdder records XAdd calls and fails a configurable number of
// initial attempts.
type fakeStreamAdder struct {
	mu        sync.Mutex
	calls     []*redis.XAddArgs
	failFirst int
	failAll   bool
	gate      chan struct{}
	gateWaits atomic.Int32
}

func (f *fakeStreamAdder) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if f.gate != nil {
		f.gateWaits.Add(1)
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, a)
	cmd := redis.NewStringCmd(ctx)
	if f.failAll || len(f.calls) <= f.failFirst {
		cmd.SetErr(errors.New("stream write failed"))
	} else {
		cmd.SetVal(strconv.Itoa(len(f.calls)) + "-0")
	}
	return cmd
}

func (f *fakeStreamAdder) gateWaiters() int {
	return int(f.gateWaits.Load())
}

func (f *fakeStreamAdder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeStreamAdder) lastCall() *redis.XAddArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func closeSink(t *testing.T, s *EventSink) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
}

func TestEventSinkPublishesEveryOfferedItem(t *testing.T) {
	adder := &fakeStreamAdder{}
	deadLetters := jobsmocks.NewMemoryFailedPublishRepo()
	var confirmed atomic.Int64

	sink, err := NewEventSink(EventSinkOptions{
		Client:      adder,
		Topic:       "marcbase.diku.record-events",
		Tenant:      "diku",
		DeadLetters: deadLetters,
		OnConfirm:   func() { confirmed.Add(1) },
		Headers:     map[string]string{"source": "bulk"},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Offer(context.Background(), stream.Item{
			Key:     "rec-" + strconv.Itoa(i),
			Payload: []byte(`{"n":` + strconv.Itoa(i) + `}`),
			Headers: map[string]string{"eventType": "ITERATE"},
		}))
	}
	require.NoError(t, sink.Flush(context.Background()))
	closeSink(t, sink)

	assert.Equal(t, 5, adder.callCount())
	assert.Equal(t, int64(5), confirmed.Load())
	assert.Equal(t, 0, deadLetters.Len())

	last := adder.lastCall()
	require.NotNil(t, last)
	assert.Equal(t, "marcbase.diku.record-events", last.Stream)
	assert.Equal(t, "rec-4", last.Values.(map[string]any)["key"])
	assert.Equal(t, "diku", last.Values.(map[string]any)["tenant"])
	assert.Equal(t, "bulk", last.Values.(map[string]any)["h:source"])
	assert.Equal(t, "ITERATE", last.Values.(map[string]any)["h:eventType"])
}

func TestEventSinkRetriesTransientFailures(t *testing.T) {
	adder := &fakeStreamAdder{failFirst: 2}
	deadLetters := jobsmocks.NewMemoryFailedPublishRepo()
	var confirmed atomic.Int64

	sink, err := NewEventSink(EventSinkOptions{
		Client:      adder,
		Topic:       "marcbase.diku.record-events",
		Tenant:      "diku",
		DeadLetters: deadLetters,
		OnConfirm:   func() { confirmed.Add(1) },
		MaxRetries:  5,
		MaxInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, sink.Offer(context.Background(), stream.Item{Key: "rec-0", Payload: []byte("{}")}))
	require.NoError(t, sink.Flush(context.Background()))
	closeSink(t, sink)

	assert.Equal(t, 3, adder.callCount(), "two failures then a success")
	assert.Equal(t, int64(1), confirmed.Load())
	assert.Equal(t, 0, deadLetters.Len())
}

func TestEventSinkDeadLettersWhenRetriesExhaust(t *testing.T) {
	adder := &fakeStreamAdder{failAll: true}
	deadLetters := jobsmocks.NewMemoryFailedPublishRepo()
	var confirmed atomic.Int64

	sink, err := NewEventSink(EventSinkOptions{
		Client:      adder,
		Topic:       "marcbase.diku.record-events",
		Tenant:      "diku",
		DeadLetters: deadLetters,
		OnConfirm:   func() { confirmed.Add(1) },
		MaxRetries:  2,
		MaxInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, sink.Offer(context.Background(), stream.Item{
		Key:     "rec-0",
		Payload: []byte(`{"n":0}`),
	}))
	require.NoError(t, sink.Flush(context.Background()))
	closeSink(t, sink)

	assert.Equal(t, 2, adder.callCount())
	// Dead-lettered items are still confirmed: the job must not stall on a
	// broken downstream.
	assert.Equal(t, int64(1), confirmed.Load())

	records, listErr := deadLetters.List(context.Background(), "diku", nil)
	require.NoError(t, listErr)
	require.Len(t, records, 1)
	assert.Equal(t, "marcbase.diku.record-events", records[0].TopicName)
	assert.Equal(t, "rec-0", records[0].PartitionKey)
	assert.Equal(t, `{"n":0}`, records[0].Payload)
	assert.Contains(t, records[0].Error, "stream write failed")
}

// failingDeadLetters always refuses to store a record.
type failingDeadLetters struct{}

func (failingDeadLetters) Create(context.Context, *model.CreateFailedPublishRequest) (*model.FailedPublish, error) {
	return nil, errors.New("dead letter table unavailable")
}

func (failingDeadLetters) GetByID(context.Context, string, string) (*model.FailedPublish, error) {
	return nil, model.ErrFailedPublishNotFound
}

func (failingDeadLetters) List(
	context.Context,
	string,
	*model.FailedPublishListOptions,
) ([]*model.FailedPublish, error) {
	return nil, nil
}

var _ core.FailedPublishRepository = failingDeadLetters{}

func TestEventSinkFatalWhenDeadLetterWriteFails(t *testing.T) {
	adder := &fakeStreamAdder{failAll: true}

	sink, err := NewEventSink(EventSinkOptions{
		Client:      adder,
		Topic:       "marcbase.diku.record-events",
		Tenant:      "diku",
		DeadLetters: failingDeadLetters{},
		MaxRetries:  1,
		MaxInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, sink.Offer(context.Background(), stream.Item{Key: "rec-0", Payload: []byte("{}")}))

	flushErr := sink.Flush(context.Background())
	require.Error(t, flushErr)
	assert.Contains(t, flushErr.Error(), "record failed publish")

	offerErr := sink.Offer(context.Background(), stream.Item{Key: "rec-1", Payload: []byte("{}")})
	assert.Equal(t, flushErr, offerErr)

	closeSink(t, sink)
}

func TestEventSinkOfferAfterCloseFails(t *testing.T) {
	sink, err := NewEventSink(EventSinkOptions{
		Client:      &fakeStreamAdder{},
		Topic:       "marcbase.diku.record-events",
		Tenant:      "diku",
		DeadLetters: jobsmocks.NewMemoryFailedPublishRepo(),
	})
	require.NoError(t, err)
	closeSink(t, sink)

	assert.ErrorIs(t, sink.Offer(context.Background(), stream.Item{Key: "late"}), stream.ErrSinkClosed)
}

func TestEventSinkWatermarkFlowControl(t *testing.T) {
	gate := make(chan struct{})
	adder := &fakeStreamAdder{gate: gate}

	sink, err := NewEventSink(EventSinkOptions{
		Client:      adder,
		Topic:       "marcbase.diku.record-events",
		Tenant:      "diku",
		DeadLetters: jobsmocks.NewMemoryFailedPublishRepo(),
		HighWater:   2,
		LowWater:    1,
	})
	require.NoError(t, err)

	// First item is picked up by the publisher and blocks on the gate; two
	// more fill the queue to the high watermark.
	require.NoError(t, sink.Offer(context.Background(), stream.Item{Key: "a"}))
	assert.Eventually(t, func() bool { return adder.gateWaiters() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, sink.Offer(context.Background(), stream.Item{Key: "b"}))
	require.NoError(t, sink.Offer(context.Background(), stream.Item{Key: "c"}))

	assert.True(t, sink.Full())

	drained := make(chan struct{})
	sink.OnDrain(func() { close(drained) })
	select {
	case <-drained:
		t.Fatal("drain fired while queue was above the low watermark")
	case <-time.After(20 * time.Millisecond):
	}

	// Let publishes through until the queue sinks to the low watermark; the
	// drain callback fires once only one item remains queued.
	gate <- struct{}{}
	gate <- struct{}{}
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("drain callback never fired")
	}

	close(gate)
	require.NoError(t, sink.Flush(context.Background()))
	closeSink(t, sink)
	assert.Equal(t, 3, adder.callCount())
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "marcbase.diku.record.instance", TopicName("diku", "record.instance"))
}

func TestSinkFactoryBuildsConfiguredSinks(t *testing.T) {
	factory := NewSinkFactory(SinkFactoryOptions{
		Client:      &fakeStreamAdder{},
		DeadLetters: jobsmocks.NewMemoryFailedPublishRepo(),
		HighWater:   16,
		LowWater:    4,
	})

	sink, err := factory.NewEventSink(core.EventSinkParams{
		Tenant: "diku",
		Topic:  TopicName("diku", "record-events"),
	})
	require.NoError(t, err)
	assert.False(t, sink.Full())
	closeSink(t, sink.(*EventSink))
}
