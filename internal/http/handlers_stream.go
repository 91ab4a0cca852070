package httpx

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/marcbase/marcbase/internal/stream"
)

// streamQueueDepth bounds the outbound chunk queue per streaming response.
// When the queue is full the storage cursor is paused, so a slow client never
// buffers the whole result set in memory.
const streamQueueDepth = 64

// StreamRecords handles HTTP requests for the full filtered record set as
// newline-delimited JSON. Failures before the first byte produce a regular
// 500; failures after that reset the connection, since the status line has
// already been sent.
func (h *RecordHandlers) StreamRecords(w http.ResponseWriter, r *http.Request) {
	opts, ok := recordListOptions(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")

	cw := newConnWriter(w, streamQueueDepth)
	_, err := h.Svc.Stream(r.Context(), TenantFromContext(r.Context()), opts, cw)
	if closeErr := cw.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		return
	}

	if !cw.Started() {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stream_failed", Err: err})
		return
	}
	// Bytes are already on the wire; the only honest failure signal left is a
	// connection reset.
	panic(http.ErrAbortHandler)
}

// connWriter adapts an http.ResponseWriter to the stream.ChunkWriter
// contract: chunks are queued and written by a dedicated goroutine, Full
// reports a saturated queue, and the one-shot drain callback fires once the
// queue falls back to the low watermark.
type connWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	queue     chan []byte
	done      chan struct{}
	started   atomic.Bool
	noFlusher bool

	mu        sync.Mutex
	pending   int
	highWater int
	lowWater  int
	drainFn   func()
	writeErr  error
}

var _ stream.ChunkWriter = (*connWriter)(nil)

func newConnWriter(w http.ResponseWriter, highWater int) *connWriter {
	if highWater < 1 {
		highWater = 1
	}
	cw := &connWriter{
		w:         w,
		rc:        http.NewResponseController(w),
		queue:     make(chan []byte, highWater),
		done:      make(chan struct{}),
		highWater: highWater,
		lowWater:  highWater / 2,
	}
	go cw.writeLoop()
	return cw
}

// WriteChunk queues one chunk for the connection. It reports the first write
// failure observed by the write loop; chunks queued after a failure are
// discarded.
func (cw *connWriter) WriteChunk(p []byte) error {
	cw.mu.Lock()
	if cw.writeErr != nil {
		err := cw.writeErr
		cw.mu.Unlock()
		return err
	}
	cw.pending++
	cw.mu.Unlock()

	// The queue has room for every chunk counted into pending, so this never
	// blocks while the write loop is alive.
	cw.queue <- p
	return nil
}

// Full reports whether the outbound queue has reached the high watermark.
func (cw *connWriter) Full() bool {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.pending >= cw.highWater
}

// OnDrain registers a one-shot callback invoked when the queue drains to the
// low watermark. If it is already there, the callback fires immediately.
func (cw *connWriter) OnDrain(fn func()) {
	cw.mu.Lock()
	if cw.pending <= cw.lowWater {
		cw.mu.Unlock()
		fn()
		return
	}
	cw.drainFn = fn
	cw.mu.Unlock()
}

// Started reports whether any byte has been handed to the server. Once true,
// the status line is on the wire and error responses are no longer possible.
func (cw *connWriter) Started() bool {
	return cw.started.Load()
}

// Close stops the write loop, waits for queued chunks to settle, and returns
// the first write error.
func (cw *connWriter) Close() error {
	close(cw.queue)
	<-cw.done

	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.writeErr
}

func (cw *connWriter) writeLoop() {
	defer close(cw.done)

	for p := range cw.queue {
		cw.mu.Lock()
		failed := cw.writeErr != nil
		cw.mu.Unlock()

		var err error
		if !failed {
			cw.started.Store(true)
			_, err = cw.w.Write(p)
			if err == nil {
				err = cw.flush()
			}
		}

		cw.mu.Lock()
		if err != nil && cw.writeErr == nil {
			cw.writeErr = err
		}
		cw.pending--
		var fire func()
		if cw.pending <= cw.lowWater && cw.drainFn != nil {
			fire = cw.drainFn
			cw.drainFn = nil
		}
		cw.mu.Unlock()

		if fire != nil {
			fire()
		}
	}
}

func (cw *connWriter) flush() error {
	if cw.noFlusher {
		return nil
	}
	err := cw.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		cw.noFlusher = true
		return nil
	}
	return err
}
