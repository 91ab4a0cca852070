package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Transform converts a row into a sink item. Returning keep=false skips the
// row without offering it (it still counts as processed). A non-nil error is
// fatal to the pump.
type Transform func(Row) (item Item, keep bool, err error)

// PumpOptions configure one Pump run.
type PumpOptions struct {
	// Transform converts rows to items; nil means identity (row id as key,
	// document as payload).
	Transform Transform

	// OnDelivered is invoked after each row has been handed to the sink (or
	// skipped), with the running processed count. Returning a non-nil error
	// stops the pump; the error is returned from Pump. Progress persistence
	// and cancellation polling hang off this hook.
	OnDelivered func(processed int64) error
}

type pumpResult struct {
	processed int64
	err       error
}

// Pump couples a row stream to a sink with exact backpressure: the stream is
// paused the moment the sink reports full and resumed by the sink's drain
// callback, so the source never outpaces the sink. It returns the number of
// rows processed and the first fatal error, if any.
//
// The coupling is a three-state machine per source/sink pair (pulling,
// paused, closed) driven only by the "capacity available" and "stop
// requested" signals; all handler work happens on the stream's delivery
// goroutine; the processed counter is atomic only so the context-cancelled
// path can read it safely.
func Pump(ctx context.Context, src RowStream, sink Sink, opts PumpOptions) (int64, error) {
	transform := opts.Transform
	if transform == nil {
		transform = identityTransform
	}

	var processed atomic.Int64
	resultCh := make(chan pumpResult, 1)
	var once sync.Once

	settle := func(err error) {
		once.Do(func() {
			_ = src.Close()
			resultCh <- pumpResult{processed: processed.Load(), err: err}
		})
	}

	src.Handler(func(row Row) {
		item, keep, err := transform(row)
		if err != nil {
			settle(err)
			return
		}
		if keep {
			if offerErr := sink.Offer(ctx, item); offerErr != nil {
				settle(offerErr)
				return
			}
		}
		n := processed.Add(1)

		if sink.Full() {
			src.Pause()
			sink.OnDrain(src.Resume)
		}

		if opts.OnDelivered != nil {
			if hookErr := opts.OnDelivered(n); hookErr != nil {
				settle(hookErr)
			}
		}
	})
	src.EndHandler(func() {
		once.Do(func() {
			resultCh <- pumpResult{processed: processed.Load(), err: nil}
		})
	})
	src.ErrorHandler(func(err error) {
		once.Do(func() {
			resultCh <- pumpResult{processed: processed.Load(), err: err}
		})
	})

	src.Start()

	select {
	case res := <-resultCh:
		return res.processed, res.err
	case <-ctx.Done():
		_ = src.Close()
		// Callers close the sink right after Pump returns; a handler still
		// inside Offer at that point would race the close. Wait for the
		// delivery loop to stop first.
		<-src.Done()
		return processed.Load(), ctx.Err()
	}
}

func identityTransform(row Row) (Item, bool, error) {
	return Item{Key: row.ID, Payload: row.Document}, true, nil
}
