// Package stream implements the flow-controlled row pipeline used by the bulk
// job engine: a pausable row stream, a capacity-signalling sink contract, and
// the pump that couples them with exact backpressure.
package stream

import (
	"sync"
)

// Row is one streamed row: an identifier and, for record streams, the JSON
// document snapshot. Document is nil for id-only streams.
type Row struct {
	ID       string
	Document []byte
}

// RowStream is a pausable, cancellable producer of rows. Handlers must be set
// before Start. The contract:
//
//   - no row is delivered after Pause until a matching Resume; pausing takes
//     effect before the next row, not eventually
//   - Close is idempotent and safe from any goroutine, including handlers
//   - an error delivered through ErrorHandler terminates the stream: no
//     further rows, no end signal
type RowStream interface {
	Handler(fn func(Row))
	EndHandler(fn func())
	ErrorHandler(fn func(error))
	Start()
	Pause()
	Resume()
	Close() error
	// Done is closed once the delivery loop has fully stopped and no handler
	// is running or will run again.
	Done() <-chan struct{}
}

type streamState int

const (
	statePulling streamState = iota
	statePaused
	stateClosed
)

// PushStream is the single RowStream implementation. Producers feed it through
// Push/End/Abort from their own goroutine; a delivery loop invokes the
// consumer handlers one row at a time.
//
// The rows channel is unbuffered on purpose: a paused or slow consumer blocks
// the producer on the next Push, which is what stops a storage cursor from
// outpacing the sink.
type PushStream struct {
	mu   sync.Mutex
	cond *sync.Cond

	state   streamState
	started bool

	handler func(Row)
	endFn   func()
	errFn   func(error)

	rows      chan Row
	closedCh  chan struct{}
	closeOnce sync.Once
	doneCh    chan struct{}

	failure error
}

var _ RowStream = (*PushStream)(nil)

// NewPushStream creates an idle stream. The producer side uses Push, End and
// Abort; the consumer side uses the RowStream contract.
func NewPushStream() *PushStream {
	s := &PushStream{
		rows:     make(chan Row),
		closedCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Handler sets the per-row callback.
func (s *PushStream) Handler(fn func(Row)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// EndHandler sets the natural-exhaustion callback.
func (s *PushStream) EndHandler(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endFn = fn
}

// ErrorHandler sets the failure callback.
func (s *PushStream) ErrorHandler(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errFn = fn
}

// Start begins delivery. Calling Start more than once is a no-op.
func (s *PushStream) Start() {
	s.mu.Lock()
	if s.started || s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.deliver()
}

// Pause stops delivery before the next row. Safe to call from the row handler;
// the row that triggered the handler has already been delivered, the next one
// waits for Resume.
func (s *PushStream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == statePulling {
		s.state = statePaused
	}
}

// Resume continues delivery from where Pause left off. A Resume on a stream
// that is not paused is a no-op.
func (s *PushStream) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == statePaused {
		s.state = statePulling
		s.cond.Broadcast()
	}
}

// Close terminates the stream. No handler runs after Close returns the state
// to closed; producers observe closure through Push returning false. Multiple
// calls are safe.
func (s *PushStream) Close() error {
	s.mu.Lock()
	s.state = stateClosed
	s.cond.Broadcast()
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.closedCh) })
	return nil
}

// Done is closed once the delivery loop has fully stopped, whether through
// exhaustion, failure, or Close.
func (s *PushStream) Done() <-chan struct{} {
	return s.doneCh
}

// Push hands one row to the delivery loop, blocking while the consumer is
// paused or busy. It returns false once the stream is closed; producers must
// stop pushing and release their resources when that happens.
func (s *PushStream) Push(row Row) bool {
	select {
	case <-s.closedCh:
		return false
	case s.rows <- row:
		return true
	}
}

// End signals natural exhaustion. The end handler fires after all pushed rows
// have been delivered.
func (s *PushStream) End() {
	close(s.rows)
}

// Abort terminates the stream with an error: no further rows are delivered
// and the end handler never fires. End must not be called after Abort.
func (s *PushStream) Abort(err error) {
	s.mu.Lock()
	s.failure = err
	s.mu.Unlock()
	close(s.rows)
}

func (s *PushStream) deliver() {
	defer close(s.doneCh)

	for {
		s.mu.Lock()
		for s.state == statePaused {
			s.cond.Wait()
		}
		if s.state == stateClosed {
			s.mu.Unlock()
			return
		}
		handler := s.handler
		s.mu.Unlock()

		select {
		case <-s.closedCh:
			return
		case row, ok := <-s.rows:
			if !ok {
				s.finish()
				return
			}
			if handler != nil {
				handler(row)
			}
		}
	}
}

// finish runs the terminal callback for a producer-initiated shutdown: the
// error handler when Abort was used, the end handler otherwise. A stream
// closed by the consumer in the meantime gets neither.
func (s *PushStream) finish() {
	s.mu.Lock()
	closed := s.state == stateClosed
	failure := s.failure
	endFn := s.endFn
	errFn := s.errFn
	s.state = stateClosed
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.closedCh) })

	if closed {
		return
	}
	if failure != nil {
		if errFn != nil {
			errFn(failure)
		}
		return
	}
	if endFn != nil {
		endFn()
	}
}
