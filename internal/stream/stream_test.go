package stream

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushRows(s *PushStream, n int) {
	go func() {
		for i := 0; i < n; i++ {
			if !s.Push(Row{ID: fmt.Sprintf("rec-%04d", i)}) {
				return
			}
		}
		s.End()
	}()
}

func waitDone(t *testing.T, s *PushStream) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not finish in time")
	}
}

func TestPushStreamDeliversRowsInOrder(t *testing.T) {
	s := NewPushStream()

	var mu sync.Mutex
	var got []string
	ended := false

	s.Handler(func(row Row) {
		mu.Lock()
		got = append(got, row.ID)
		mu.Unlock()
	})
	s.EndHandler(func() {
		mu.Lock()
		ended = true
		mu.Unlock()
	})

	pushRows(s, 50)
	s.Start()
	waitDone(t, s)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	assert.Equal(t, "rec-0000", got[0])
	assert.Equal(t, "rec-0049", got[49])
	assert.True(t, ended, "end handler should fire after all rows")
}

func TestPushStreamPauseStopsDeliveryBeforeNextRow(t *testing.T) {
	s := NewPushStream()

	delivered := make(chan string, 10)
	s.Handler(func(row Row) {
		delivered <- row.ID
		if row.ID == "first" {
			s.Pause()
		}
	})
	s.EndHandler(func() { close(delivered) })

	go func() {
		s.Push(Row{ID: "first"})
		s.Push(Row{ID: "second"})
		s.End()
	}()
	s.Start()

	select {
	case id := <-delivered:
		require.Equal(t, "first", id)
	case <-time.After(2 * time.Second):
		t.Fatal("first row not delivered")
	}

	// The second row must not arrive while paused.
	select {
	case id := <-delivered:
		t.Fatalf("row %q delivered while paused", id)
	case <-time.After(50 * time.Millisecond):
	}

	s.Resume()

	select {
	case id := <-delivered:
		assert.Equal(t, "second", id)
	case <-time.After(2 * time.Second):
		t.Fatal("second row not delivered after resume")
	}
	waitDone(t, s)
}

func TestPushStreamPushReturnsFalseAfterClose(t *testing.T) {
	s := NewPushStream()
	s.Start()

	require.NoError(t, s.Close())
	assert.False(t, s.Push(Row{ID: "late"}))
}

func TestPushStreamCloseIsIdempotent(t *testing.T) {
	s := NewPushStream()
	s.Start()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	waitDone(t, s)
}

func TestPushStreamAbortInvokesErrorHandlerOnly(t *testing.T) {
	s := NewPushStream()
	boom := errors.New("cursor failed")

	errCh := make(chan error, 1)
	ended := make(chan struct{}, 1)
	s.Handler(func(Row) {})
	s.ErrorHandler(func(err error) { errCh <- err })
	s.EndHandler(func() { ended <- struct{}{} })

	go func() {
		s.Push(Row{ID: "only"})
		s.Abort(boom)
	}()
	s.Start()
	waitDone(t, s)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, boom)
	default:
		t.Fatal("error handler did not fire")
	}
	select {
	case <-ended:
		t.Fatal("end handler fired after abort")
	default:
	}
}

func TestPushStreamConsumerCloseSuppressesTerminalHandlers(t *testing.T) {
	s := NewPushStream()

	terminal := make(chan string, 2)
	s.Handler(func(Row) {})
	s.EndHandler(func() { terminal <- "end" })
	s.ErrorHandler(func(error) { terminal <- "error" })

	s.Start()
	require.NoError(t, s.Close())
	waitDone(t, s)

	select {
	case which := <-terminal:
		t.Fatalf("%s handler fired on a consumer-closed stream", which)
	default:
	}
}
