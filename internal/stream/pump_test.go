package stream

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueSink is a bounded sink for pump tests: Offer enqueues, Full reports
// capacity, and take drains one item and fires any pending drain callback,
// modeling an async transport consuming at its own pace.
type queueSink struct {
	mu       sync.Mutex
	items    []Item
	inFlight int
	capacity int
	maxSeen  int
	drainFn  func()
	offerErr error
	closed   bool
}

func newQueueSink(capacity int) *queueSink {
	return &queueSink{capacity: capacity}
}

func (s *queueSink) Offer(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if s.offerErr != nil {
		return s.offerErr
	}
	s.items = append(s.items, item)
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	return nil
}

func (s *queueSink) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity > 0 && s.inFlight >= s.capacity
}

func (s *queueSink) OnDrain(fn func()) {
	s.mu.Lock()
	if s.capacity == 0 || s.inFlight < s.capacity {
		s.mu.Unlock()
		fn()
		return
	}
	s.drainFn = fn
	s.mu.Unlock()
}

func (s *queueSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// take drains n in-flight items, firing the drain callback when capacity
// reappears.
func (s *queueSink) take(n int) {
	s.mu.Lock()
	s.inFlight -= n
	if s.inFlight < 0 {
		s.inFlight = 0
	}
	fn := s.drainFn
	s.drainFn = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *queueSink) all() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func sourceOf(n int) *PushStream {
	s := NewPushStream()
	go func() {
		for i := 0; i < n; i++ {
			if !s.Push(Row{ID: "rec-" + strconv.Itoa(i), Document: []byte(`{"n":` + strconv.Itoa(i) + `}`)}) {
				return
			}
		}
		s.End()
	}()
	return s
}

func TestPumpDeliversEveryRowExactlyOnce(t *testing.T) {
	sink := newQueueSink(0)
	processed, err := Pump(context.Background(), sourceOf(100), sink, PumpOptions{})

	require.NoError(t, err)
	assert.Equal(t, int64(100), processed)

	items := sink.all()
	require.Len(t, items, 100)
	assert.Equal(t, "rec-0", items[0].Key)
	assert.Equal(t, []byte(`{"n":0}`), items[0].Payload)
	assert.Equal(t, "rec-99", items[99].Key)
}

func TestPumpPausesSourceWhileSinkIsFull(t *testing.T) {
	sink := newQueueSink(4)

	// Drain the sink from a slow consumer goroutine so the pump has to wait
	// for capacity repeatedly.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			case <-time.After(time.Millisecond):
				sink.take(2)
			}
		}
	}()

	processed, err := Pump(context.Background(), sourceOf(64), sink, PumpOptions{})
	close(stop)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, int64(64), processed)
	assert.Len(t, sink.all(), 64)
	// The in-flight window may overshoot by the row already in the handler
	// when Full flips, never more.
	assert.LessOrEqual(t, sink.maxSeen, 5)
}

func TestPumpSkippedRowsCountAsProcessed(t *testing.T) {
	sink := newQueueSink(0)
	keepEven := func(row Row) (Item, bool, error) {
		n, _ := strconv.Atoi(row.ID[len("rec-"):])
		if n%2 != 0 {
			return Item{}, false, nil
		}
		return Item{Key: row.ID, Payload: row.Document}, true, nil
	}

	processed, err := Pump(context.Background(), sourceOf(10), sink, PumpOptions{Transform: keepEven})

	require.NoError(t, err)
	assert.Equal(t, int64(10), processed)
	assert.Len(t, sink.all(), 5)
}

func TestPumpTransformErrorIsFatal(t *testing.T) {
	sink := newQueueSink(0)
	boom := errors.New("bad document")
	failAtThree := func(row Row) (Item, bool, error) {
		if row.ID == "rec-3" {
			return Item{}, false, boom
		}
		return Item{Key: row.ID}, true, nil
	}

	processed, err := Pump(context.Background(), sourceOf(10), sink, PumpOptions{Transform: failAtThree})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(3), processed)
}

func TestPumpOfferErrorIsFatal(t *testing.T) {
	sink := newQueueSink(0)
	sink.offerErr = errors.New("transport gone")

	processed, err := Pump(context.Background(), sourceOf(10), sink, PumpOptions{})

	assert.ErrorIs(t, err, sink.offerErr)
	assert.Equal(t, int64(0), processed)
}

func TestPumpOnDeliveredErrorStopsTheRun(t *testing.T) {
	sink := newQueueSink(0)
	stopAt := errors.New("checkpoint says stop")

	processed, err := Pump(context.Background(), sourceOf(100), sink, PumpOptions{
		OnDelivered: func(n int64) error {
			if n == 7 {
				return stopAt
			}
			return nil
		},
	})

	assert.ErrorIs(t, err, stopAt)
	assert.Equal(t, int64(7), processed)
}

func TestPumpCancellationWaitsForInFlightHandler(t *testing.T) {
	sink := newQueueSink(0)
	entered := make(chan struct{})
	release := make(chan struct{})
	blockOnFirst := func(row Row) (Item, bool, error) {
		if row.ID == "rec-0" {
			close(entered)
			<-release
		}
		return Item{Key: row.ID, Payload: row.Document}, true, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, _ = Pump(ctx, sourceOf(10), sink, PumpOptions{Transform: blockOnFirst})
		close(done)
	}()

	<-entered
	cancel()

	// The first row is still inside the handler. Pump must not hand control
	// back to the caller, who would close the sink under the handler's feet.
	select {
	case <-done:
		t.Fatal("pump returned while a handler was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not return after the handler finished")
	}
}

func TestPumpContextCancellation(t *testing.T) {
	sink := newQueueSink(1)
	// Never drained: the source stalls once the sink is full.
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var processed int64
	var err error
	go func() {
		processed, err = Pump(ctx, sourceOf(100), sink, PumpOptions{})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not return after cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, processed, int64(100))
}
