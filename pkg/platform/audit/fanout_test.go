package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "treasury/pkg/platform/audit"
	"treasury/pkg/platform/audit/store/memory"
)

type recordingSink struct {
	events []audit.Event
	err    error
}

func (s *recordingSink) Append(_ context.Context, event audit.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func TestFanout(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards to every sink", func(t *testing.T) {
		primary := memory.NewInMemoryStore()
		a, b := &recordingSink{}, &recordingSink{}
		fanout := audit.NewFanout(primary, nil, a, b)

		require.NoError(t, fanout.Append(ctx, audit.Event{Subject: "proposal:1", Action: "proposal_created"}))

		stored, err := fanout.ListBySubject(ctx, "proposal:1")
		require.NoError(t, err)
		assert.Len(t, stored, 1)
		assert.Len(t, a.events, 1)
		assert.Len(t, b.events, 1)
	})

	t.Run("sink failure does not fail append", func(t *testing.T) {
		primary := memory.NewInMemoryStore()
		broken := &recordingSink{err: errors.New("broker down")}
		fanout := audit.NewFanout(primary, nil, broken)

		require.NoError(t, fanout.Append(ctx, audit.Event{Subject: "proposal:2", Action: "proposal_created"}))

		stored, err := primary.ListBySubject(ctx, "proposal:2")
		require.NoError(t, err)
		assert.Len(t, stored, 1)
	})
}
