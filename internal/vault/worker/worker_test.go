package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/internal/vault/service"
	dErrors "treasury/pkg/domain-errors"
)

type stubProcessor struct {
	calls  atomic.Int32
	report *service.ProcessReport
	err    error
}

func (p *stubProcessor) ProcessDuePayments(context.Context) (*service.ProcessReport, error) {
	p.calls.Add(1)
	return p.report, p.err
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, time.Second)
	assert.Error(t, err)

	_, err = New(&stubProcessor{}, 0)
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	t.Run("returns report", func(t *testing.T) {
		p := &stubProcessor{report: &service.ProcessReport{
			Tick:   42,
			Paid:   []uint64{1},
			Failed: []service.PaymentFailure{{ID: 2, Code: "daily_limit_exceeded"}},
		}}
		w, err := New(p, time.Second)
		require.NoError(t, err)

		report := w.RunOnce(context.Background())
		require.NotNil(t, report)
		assert.Equal(t, []uint64{1}, report.Paid)
	})

	t.Run("uninitialized vault is not an error", func(t *testing.T) {
		p := &stubProcessor{err: dErrors.New(dErrors.CodeNotInitialized, "vault is not initialized")}
		w, err := New(p, time.Second)
		require.NoError(t, err)
		assert.Nil(t, w.RunOnce(context.Background()))
	})

	t.Run("failure yields nil report", func(t *testing.T) {
		p := &stubProcessor{err: errors.New("store down")}
		w, err := New(p, time.Second)
		require.NoError(t, err)
		assert.Nil(t, w.RunOnce(context.Background()))
	})
}

func TestStart_RunsUntilCancelled(t *testing.T) {
	p := &stubProcessor{err: errors.New("store down")}
	w, err := New(p, 5*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, time.Millisecond,
		"failed runs must not stop the loop")
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
