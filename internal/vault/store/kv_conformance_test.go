package store_test

import (
	"context"

	"github.com/stretchr/testify/suite"

	"treasury/internal/vault/store"
	"treasury/pkg/platform/sentinel"
)

// KVConformanceSuite holds behavior every backend must share. Backend suites
// embed it and set KV in SetupTest.
type KVConformanceSuite struct {
	suite.Suite
	KV store.KV
}

func (s *KVConformanceSuite) TestGetMissingKey() {
	_, err := s.KV.Get(context.Background(), "absent")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *KVConformanceSuite) TestSetGetRemove() {
	ctx := context.Background()
	s.Require().NoError(s.KV.Set(ctx, "config", []byte(`{"threshold":2}`)))

	got, err := s.KV.Get(ctx, "config")
	s.Require().NoError(err)
	s.Equal(`{"threshold":2}`, string(got))

	s.Require().NoError(s.KV.Remove(ctx, "config"))
	_, err = s.KV.Get(ctx, "config")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *KVConformanceSuite) TestRemoveMissingKeyIsNoop() {
	s.NoError(s.KV.Remove(context.Background(), "never-set"))
}

func (s *KVConformanceSuite) TestApplyBatch() {
	ctx := context.Background()
	s.Require().NoError(s.KV.Set(ctx, "role:old", []byte(`"admin"`)))

	err := s.KV.Apply(ctx, []store.Write{
		{Key: "proposal:1", Value: []byte(`{"id":1}`)},
		{Key: "proposal_counter", Value: []byte(`2`)},
		{Key: "role:old", Delete: true},
	})
	s.Require().NoError(err)

	got, err := s.KV.Get(ctx, "proposal_counter")
	s.Require().NoError(err)
	s.Equal("2", string(got))

	_, err = s.KV.Get(ctx, "role:old")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *KVConformanceSuite) TestApplyEmptyBatch() {
	s.NoError(s.KV.Apply(context.Background(), nil))
}

func (s *KVConformanceSuite) TestApplyWithHoldingReads() {
	ctx := context.Background()
	s.Require().NoError(s.KV.Set(ctx, "proposal_counter", []byte(`1`)))

	err := s.KV.Apply(ctx,
		[]store.Write{{Key: "proposal_counter", Value: []byte(`2`)}, {Key: "proposal:1", Value: []byte(`{"id":1}`)}},
		store.Read{Key: "proposal_counter", Value: []byte(`1`)},
		store.Read{Key: "proposal:1", Missing: true},
	)
	s.Require().NoError(err)

	got, err := s.KV.Get(ctx, "proposal:1")
	s.Require().NoError(err)
	s.Equal(`{"id":1}`, string(got))
}

func (s *KVConformanceSuite) TestApplyRejectsChangedRead() {
	ctx := context.Background()
	s.Require().NoError(s.KV.Set(ctx, "proposal:1", []byte(`{"status":"executed"}`)))

	err := s.KV.Apply(ctx,
		[]store.Write{
			{Key: "proposal:1", Value: []byte(`{"status":"executed","by":"other"}`)},
			{Key: "spending_window", Value: []byte(`{}`)},
		},
		store.Read{Key: "proposal:1", Value: []byte(`{"status":"approved"}`)},
	)
	s.ErrorIs(err, sentinel.ErrConflict)

	got, err := s.KV.Get(ctx, "proposal:1")
	s.Require().NoError(err)
	s.Equal(`{"status":"executed"}`, string(got))
	_, err = s.KV.Get(ctx, "spending_window")
	s.ErrorIs(err, sentinel.ErrNotFound, "no write of a refused batch lands")
}

func (s *KVConformanceSuite) TestApplyRejectsKeyCreatedSinceRead() {
	ctx := context.Background()
	s.Require().NoError(s.KV.Set(ctx, "config", []byte(`{"threshold":1}`)))

	err := s.KV.Apply(ctx,
		[]store.Write{{Key: "config", Value: []byte(`{"threshold":2}`)}},
		store.Read{Key: "config", Missing: true},
	)
	s.ErrorIs(err, sentinel.ErrConflict)
}
