package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/model"
)

func TestUpdateStatusAndPropagateToDirectDependent(t *testing.T) {
	ctx := context.Background()
	s := New()

	upstream := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew}
	require.NoError(t, s.Contents().Create(ctx, upstream))

	downstream := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew, ContentDepID: &upstream.ContentID}
	require.NoError(t, s.Contents().Create(ctx, downstream))

	require.NoError(t, s.Contents().UpdateStatusAndPropagate(ctx, upstream.ContentID, model.ContentAvailable))

	got, err := s.Contents().Get(ctx, downstream.ContentID)
	require.NoError(t, err)
	require.Equal(t, model.ContentAvailable, got.Substatus)
}

func TestUpdateStatusAndPropagateIsTransitive(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew}
	require.NoError(t, s.Contents().Create(ctx, a))
	b := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew, ContentDepID: &a.ContentID}
	require.NoError(t, s.Contents().Create(ctx, b))
	c := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew, ContentDepID: &b.ContentID}
	require.NoError(t, s.Contents().Create(ctx, c))

	require.NoError(t, s.Contents().UpdateStatusAndPropagate(ctx, a.ContentID, model.ContentFailed))

	gotB, err := s.Contents().Get(ctx, b.ContentID)
	require.NoError(t, err)
	require.Equal(t, model.ContentFailed, gotB.Substatus)

	gotC, err := s.Contents().Get(ctx, c.ContentID)
	require.NoError(t, err)
	require.Equal(t, model.ContentFailed, gotC.Substatus)
}

func TestUpdateStatusAndPropagateSkipsNonPropagatableStatus(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew}
	require.NoError(t, s.Contents().Create(ctx, a))
	b := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew, ContentDepID: &a.ContentID}
	require.NoError(t, s.Contents().Create(ctx, b))

	require.NoError(t, s.Contents().UpdateStatusAndPropagate(ctx, a.ContentID, model.ContentProcessing))

	gotB, err := s.Contents().Get(ctx, b.ContentID)
	require.NoError(t, err)
	require.Equal(t, model.ContentNew, gotB.Substatus, "non-propagatable status must not rewrite dependents")
}

func TestUpdateStatusAndPropagateToleratesCycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew}
	require.NoError(t, s.Contents().Create(ctx, a))
	b := &model.Content{Status: model.ContentNew, Substatus: model.ContentNew, ContentDepID: &a.ContentID}
	require.NoError(t, s.Contents().Create(ctx, b))

	// Force a cycle: a now (incorrectly) depends on b too.
	a.ContentDepID = &b.ContentID
	s.contents[a.ContentID] = a

	done := make(chan error, 1)
	go func() {
		done <- s.Contents().UpdateStatusAndPropagate(ctx, a.ContentID, model.ContentAvailable)
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("propagation did not terminate on a cyclic dependency graph")
	}
}
