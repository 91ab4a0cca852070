package stream

import (
	"context"
	"sync/atomic"
)

// ChunkWriter is the connection-facing contract consumed by the Response
// Sink: write one chunk, report whether the outbound write queue is full, and
// fire a one-shot callback once the queue has drained. Implementations wrap an
// HTTP connection; tests wrap an in-memory queue.
type ChunkWriter interface {
	WriteChunk(p []byte) error
	Full() bool
	OnDrain(fn func())
}

// ResponseSink adapts a ChunkWriter to the Sink contract, writing each item's
// payload as one newline-terminated chunk. Writes are synchronous: an item is
// confirmed the moment WriteChunk returns, so published never lags processed
// for this sink.
type ResponseSink struct {
	w      ChunkWriter
	closed atomic.Bool
	wrote  atomic.Int64
}

var _ Sink = (*ResponseSink)(nil)

// NewResponseSink wraps the given connection writer.
func NewResponseSink(w ChunkWriter) *ResponseSink {
	return &ResponseSink{w: w}
}

// Offer serializes one row onto the connection. Any write error is fatal: the
// destination socket is gone and the stream cannot continue.
func (s *ResponseSink) Offer(_ context.Context, item Item) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	chunk := make([]byte, 0, len(item.Payload)+1)
	chunk = append(chunk, item.Payload...)
	chunk = append(chunk, '\n')
	if err := s.w.WriteChunk(chunk); err != nil {
		return err
	}
	s.wrote.Add(1)
	return nil
}

// Full reports the connection's write-queue state.
func (s *ResponseSink) Full() bool {
	return s.w.Full()
}

// OnDrain registers the capacity-available callback with the connection.
func (s *ResponseSink) OnDrain(fn func()) {
	s.w.OnDrain(fn)
}

// Close marks the sink closed. Closing twice is a no-op; the underlying
// connection is owned by the HTTP layer, not by the sink.
func (s *ResponseSink) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

// Written returns the number of chunks successfully written.
func (s *ResponseSink) Written() int64 {
	return s.wrote.Load()
}
