package attrs

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ticket int

func (t ticket) String() string { return "ticket-7" }

func TestExtractString(t *testing.T) {
	kv := []any{"proposal_id", uint64(3), "caller", "GADMIN", "dangling"}
	assert.Equal(t, "GADMIN", ExtractString(kv, "caller"))
	assert.Empty(t, ExtractString(kv, "proposal_id"), "non-string values are ignored")
	assert.Empty(t, ExtractString(kv, "dangling"))
}

func TestToStringMap(t *testing.T) {
	got := ToStringMap([]any{
		"proposal_id", uint64(3),
		"caller", "GADMIN",
		"ref", ticket(7),
		slog.String("token", "USDC"),
		"dangling",
	})
	assert.Equal(t, map[string]string{
		"proposal_id": "3",
		"caller":      "GADMIN",
		"ref":         "ticket-7",
		"token":       "USDC",
	}, got)
}
