package stream

import (
	"context"
	"errors"
)

// Item is one unit of work handed to a sink: a partition key, an opaque
// payload, and transport headers.
type Item struct {
	Key     string
	Payload []byte
	Headers map[string]string
}

// ErrSinkClosed is returned by Offer after the sink has been closed.
var ErrSinkClosed = errors.New("sink is closed")

// Sink consumes items one at a time and reports capacity. Offer returning nil
// means the item was accepted for delivery, including the dead-letter case
// where delivery ultimately fails but is durably recorded. A non-nil error
// from Offer is fatal for the whole pump.
//
// Full and OnDrain mirror the write-queue flow control of the underlying
// transport: when Full reports true the caller pauses its source and registers
// a one-shot drain callback; the callback fires as soon as capacity is
// available again (immediately, if it already is).
type Sink interface {
	Offer(ctx context.Context, item Item) error
	Full() bool
	OnDrain(fn func())
	Close(ctx context.Context) error
}

// Flusher is implemented by sinks that accept items asynchronously. Flush
// blocks until every accepted item has been confirmed (delivered or
// dead-lettered).
type Flusher interface {
	Flush(ctx context.Context) error
}
