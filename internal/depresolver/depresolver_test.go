package depresolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store/memory"
)

func TestResolvePropagatesToDependent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := New(s.Contents())

	a := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew}
	require.NoError(t, s.Contents().Create(ctx, a))
	b := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew, ContentDepID: &a.ContentID}
	require.NoError(t, s.Contents().Create(ctx, b))

	require.NoError(t, r.Resolve(ctx, a.ContentID, model.ContentAvailable))

	got, err := s.Contents().Get(ctx, b.ContentID)
	require.NoError(t, err)
	require.Equal(t, model.ContentAvailable, got.Substatus)
}

func TestResolveSkipsNonPropagatableStatus(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := New(s.Contents())

	a := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew}
	require.NoError(t, s.Contents().Create(ctx, a))

	require.NoError(t, r.Resolve(ctx, a.ContentID, model.ContentProcessing))
}

func TestCheckAcyclicAcceptsAStraightChain(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := New(s.Contents())

	a := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew}
	require.NoError(t, s.Contents().Create(ctx, a))
	b := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew, ContentDepID: &a.ContentID}
	require.NoError(t, s.Contents().Create(ctx, b))
	c := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew, ContentDepID: &b.ContentID}
	require.NoError(t, s.Contents().Create(ctx, c))

	require.NoError(t, r.checkAcyclic(ctx, a.ContentID))
}
