package audit

import (
	"context"
	"errors"
	"log/slog"
)

// Sink receives copies of appended events, typically a message broker.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Fanout is a Store that forwards every appended event to secondary sinks
// after the primary store accepts it. Sink failures are logged and do not
// fail the append; reads go to the primary.
type Fanout struct {
	Store
	sinks  []Sink
	logger *slog.Logger
}

func NewFanout(primary Store, logger *slog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{Store: primary, sinks: sinks, logger: logger}
}

func (f *Fanout) Append(ctx context.Context, event Event) error {
	if err := f.Store.Append(ctx, event); err != nil {
		return err
	}
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil && f.logger != nil {
		f.logger.WarnContext(ctx, "audit sink delivery failed",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
	return nil
}
