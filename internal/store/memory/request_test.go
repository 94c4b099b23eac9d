package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

func TestRequestClaimNewHidesRowsFromConcurrentClaimers(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &model.Request{Scope: "test", Name: "req1", Status: model.RequestNew}
	require.NoError(t, s.Requests().Create(ctx, r))

	claimed, err := s.Requests().ClaimNew(ctx, "worker-a", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	claimedAgain, err := s.Requests().ClaimNew(ctx, "worker-b", 10)
	require.NoError(t, err)
	require.Empty(t, claimedAgain, "a locked row must not be claimable by a second worker")
}

func TestRequestReleaseMakesRowClaimableAgain(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &model.Request{Scope: "test", Name: "req1", Status: model.RequestNew}
	require.NoError(t, s.Requests().Create(ctx, r))

	claimed, err := s.Requests().ClaimNew(ctx, "worker-a", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, s.Requests().Release(ctx, claimed[0].RequestID))

	claimedAgain, err := s.Requests().ClaimNew(ctx, "worker-b", 10)
	require.NoError(t, err)
	require.Len(t, claimedAgain, 1)
}

func TestRequestUpdateClearsLockAutomatically(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &model.Request{Scope: "test", Name: "req1", Status: model.RequestNew}
	require.NoError(t, s.Requests().Create(ctx, r))
	claimed, err := s.Requests().ClaimNew(ctx, "worker-a", 10)
	require.NoError(t, err)

	claimed[0].Status = model.RequestTransforming
	require.NoError(t, s.Requests().Update(ctx, claimed[0]))

	got, err := s.Requests().Get(ctx, claimed[0].RequestID)
	require.NoError(t, err)
	require.Equal(t, model.LockIdle, got.Locking)
	require.Equal(t, model.RequestTransforming, got.Status)
}

func TestRequestClaimForUpdateRespectsNextPollAt(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &model.Request{Scope: "test", Name: "req1", Status: model.RequestTransforming}
	require.NoError(t, s.Requests().Create(ctx, r))
	r.NextPollAt = r.NextPollAt.Add(time.Hour)
	require.NoError(t, s.Requests().Update(ctx, r))

	claimed, err := s.Requests().ClaimForUpdate(ctx, "worker-a", store.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, claimed, "a request not yet due for polling must not be claimed")
}
