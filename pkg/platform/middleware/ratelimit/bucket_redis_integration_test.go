//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"treasury/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisBucketStore
	now   time.Time
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.now = time.UnixMilli(1_700_000_000_000)
	s.store = NewRedisBucketStore(s.redis.Client, "rl-test:")
	s.store.now = func() time.Time { return s.now }
}

func (s *RedisBucketStoreSuite) TestAllowUpToLimit() {
	ctx := context.Background()
	for i := range 3 {
		res, err := s.store.Allow(ctx, "caller:alice", 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(2-i, res.Remaining)
		s.Equal(s.now.Add(time.Minute), res.ResetAt)
	}

	res, err := s.store.Allow(ctx, "caller:alice", 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(time.Minute, res.RetryAfter)

	exists, err := s.redis.Client.Exists(ctx, "rl-test:caller:alice").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), exists)
}

func (s *RedisBucketStoreSuite) TestWindowSlides() {
	ctx := context.Background()
	for range 2 {
		_, err := s.store.Allow(ctx, "caller:bob", 2, time.Minute)
		s.Require().NoError(err)
	}

	s.now = s.now.Add(time.Minute)
	res, err := s.store.Allow(ctx, "caller:bob", 2, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(1, res.Remaining)
}
