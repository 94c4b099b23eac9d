package clerk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store/memory"
	"github.com/iddsorg/idds/internal/workflow"
)

func newWork(id string) workflow.Work { return workflow.NewPseudoWork(id) }

// singleWorkMetadata is request_metadata for a Workflow with one initial
// work, "w1".
var singleWorkMetadata = []byte(`{"workflow":{"work_ids":["w1"],"initial_works":["w1"]}}`)

func TestPullNewRequestsExpandsInitialWorksIntoTransforms(t *testing.T) {
	s := memory.New()
	req := &model.Request{Scope: "test", Name: "r1", Status: model.RequestNew, RequestMetadata: singleWorkMetadata}
	require.NoError(t, s.Requests().Create(context.Background(), req))

	a := New(s, newWork, "worker-1", 10)

	n, err := a.PullNewRequests(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.Requests().Get(context.Background(), req.RequestID)
	require.NoError(t, err)
	require.Equal(t, model.RequestTransforming, got.Status)

	transforms, err := s.Transforms().ListByRequest(context.Background(), req.RequestID)
	require.NoError(t, err)
	require.Len(t, transforms, 1)
}

func TestPullTransformingRequestsAggregatesFinishedStatus(t *testing.T) {
	s := memory.New()
	req := &model.Request{Scope: "test", Name: "r1", Status: model.RequestNew, RequestMetadata: singleWorkMetadata}
	require.NoError(t, s.Requests().Create(context.Background(), req))

	a := New(s, newWork, "worker-1", 10)
	_, err := a.PullNewRequests(context.Background())
	require.NoError(t, err)

	transforms, err := s.Transforms().ListByRequest(context.Background(), req.RequestID)
	require.NoError(t, err)
	require.Len(t, transforms, 1)
	transforms[0].Status = model.TransformFinished
	require.NoError(t, s.Transforms().Update(context.Background(), transforms[0]))

	n, err := a.PullTransformingRequests(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.Requests().Get(context.Background(), req.RequestID)
	require.NoError(t, err)
	require.Equal(t, model.RequestFinished, got.Status)
}

func TestPullOperationRequestsMarksCancelling(t *testing.T) {
	s := memory.New()
	req := &model.Request{Scope: "test", Name: "r1", Status: model.RequestNew, RequestMetadata: singleWorkMetadata}
	require.NoError(t, s.Requests().Create(context.Background(), req))

	a := New(s, newWork, "worker-1", 10)
	_, err := a.PullNewRequests(context.Background())
	require.NoError(t, err)

	require.NoError(t, a.PullOperationRequests(context.Background(), req.RequestID, model.SubstatusToCancel))

	got, err := s.Requests().Get(context.Background(), req.RequestID)
	require.NoError(t, err)
	require.Equal(t, model.RequestCancelling, got.Status)

	transforms, err := s.Transforms().ListByRequest(context.Background(), req.RequestID)
	require.NoError(t, err)
	require.Equal(t, model.SubstatusToCancel, transforms[0].Substatus)
}

func TestPullCommandsDrainsAndAppliesCancel(t *testing.T) {
	s := memory.New()
	req := &model.Request{Scope: "test", Name: "r1", Status: model.RequestNew}
	require.NoError(t, s.Requests().Create(context.Background(), req))

	a := New(s, newWork, "worker-1", 10)
	_, err := a.PullNewRequests(context.Background())
	require.NoError(t, err)

	cmd := &model.Command{CmdType: model.CommandToCancel, RequestID: &req.RequestID}
	require.NoError(t, s.Commands().Create(context.Background(), cmd))

	n, err := a.PullCommands(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.Requests().Get(context.Background(), req.RequestID)
	require.NoError(t, err)
	require.Equal(t, model.RequestCancelling, got.Status)
}
