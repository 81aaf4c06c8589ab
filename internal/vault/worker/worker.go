// Package worker periodically settles due recurring payments.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"treasury/internal/vault/service"
	dErrors "treasury/pkg/domain-errors"
)

// Processor settles every recurring payment due at the current tick.
type Processor interface {
	ProcessDuePayments(ctx context.Context) (*service.ProcessReport, error)
}

// Worker drives a Processor on a fixed interval.
type Worker struct {
	processor Processor
	interval  time.Duration
	logger    *slog.Logger
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func New(processor Processor, interval time.Duration, opts ...Option) (*Worker, error) {
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	w := &Worker{
		processor: processor,
		interval:  interval,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start processes due payments every interval until ctx is cancelled. Failed
// runs are logged and retried on the next tick.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single processing run and returns its report, or nil
// when the run failed as a whole.
func (w *Worker) RunOnce(ctx context.Context) *service.ProcessReport {
	report, err := w.processor.ProcessDuePayments(ctx)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotInitialized) {
			w.logger.DebugContext(ctx, "recurring run skipped: vault not initialized")
			return nil
		}
		w.logger.ErrorContext(ctx, "recurring run failed", "error", err)
		return nil
	}
	if len(report.Paid) == 0 && len(report.Failed) == 0 {
		return report
	}
	w.logger.InfoContext(ctx, "recurring run completed",
		"tick", uint64(report.Tick),
		"paid", len(report.Paid),
		"failed", len(report.Failed),
	)
	for _, f := range report.Failed {
		w.logger.WarnContext(ctx, "recurring payment not settled",
			"recurring_id", f.ID,
			"code", f.Code,
			"reason", f.Message,
		)
	}
	return report
}
