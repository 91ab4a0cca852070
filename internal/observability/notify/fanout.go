package notify

import (
	"context"
	"errors"
)

// Fanout delivers each notification to every sink. Delivery errors are
// collected rather than short-circuiting, so one broken destination does not
// silence the others.
func Fanout(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return fanoutSink(filtered)
}

type fanoutSink []Sink

func (f fanoutSink) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	var errs []error
	for _, s := range f {
		if err := s.SendJobFailure(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
