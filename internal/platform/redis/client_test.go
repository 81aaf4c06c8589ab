package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"treasury/internal/platform/config"
)

func TestNew_RejectsBadConfig(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, config.RedisConfig{})
	require.ErrorContains(t, err, "redis url is required")

	_, err = New(ctx, config.RedisConfig{URL: "http://not-redis"})
	require.ErrorContains(t, err, "parse redis URL")
}
