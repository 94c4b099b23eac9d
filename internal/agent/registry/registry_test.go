package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/agent/transformer"
	"github.com/iddsorg/idds/internal/workflow"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, "atlaspanda", KindOf("atlaspanda:ds.001"))
	require.Equal(t, "pseudo", KindOf("no-colon-here"))
	require.Equal(t, "pseudo", KindOf(":leading-colon"))
}

func TestClerkRegistryFallsBackToPseudo(t *testing.T) {
	r := NewClerkRegistry()
	factory := r.Factory()

	w := factory("unregistered-kind:work-1")
	require.IsType(t, &workflow.PseudoWork{}, w)
	require.Equal(t, "unregistered-kind:work-1", w.ID())
}

func TestClerkRegistryUsesRegisteredKind(t *testing.T) {
	r := NewClerkRegistry()
	var built string
	r.Register("custom", func(workID string) workflow.Work {
		built = workID
		return workflow.NewPseudoWork(workID)
	})

	w := r.Factory()("custom:work-2")
	require.Equal(t, "custom:work-2", built)
	require.Equal(t, "custom:work-2", w.ID())
}

func TestTransformerRegistryReturnsUnknownWorkForUnregisteredKind(t *testing.T) {
	r := NewTransformerRegistry()
	w := r.Factory()("atlaspanda:work-3")

	require.Equal(t, "atlaspanda:work-3", w.ID())
	require.Empty(t, w.Collections())
	require.False(t, w.HasNewInputs())
	require.False(t, w.UseDependencyToReleaseJobs())

	maps, err := w.GetNewInputOutputMaps(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, maps)

	_, ok := w.GetProcessing(nil, false)
	require.False(t, ok)

	require.Equal(t, workflow.WorkTransforming, w.SyncWorkStatus(true, true))
}

func TestTransformerRegistryUsesRegisteredKind(t *testing.T) {
	r := NewTransformerRegistry()
	called := false
	r.Register("fake", func(workID string) transformer.Work {
		called = true
		return &fakeWork{id: workID}
	})

	w := r.Factory()("fake:work-4")
	require.True(t, called)
	require.Equal(t, "fake:work-4", w.ID())
}

type fakeWork struct {
	id    string
	state workflow.WorkState
}

func (w *fakeWork) ID() string                                       { return w.id }
func (w *fakeWork) State() *workflow.WorkState                       { return &w.state }
func (w *fakeWork) UseDependencyToReleaseJobs() bool                 { return false }
func (w *fakeWork) HasNewInputs() bool                               { return true }
func (w *fakeWork) Collections() []transformer.CollectionSpec { return nil }
func (w *fakeWork) GetNewInputOutputMaps(ctx context.Context, alreadyMapped map[string]bool) ([]transformer.InputOutputMap, error) {
	return nil, nil
}
func (w *fakeWork) GetProcessing(maps []transformer.InputOutputMap, withoutCreating bool) (map[string]any, bool) {
	return nil, false
}
func (w *fakeWork) SyncWorkStatus(processingsTerminated, allOutputsFlushed bool) workflow.WorkStatus {
	return workflow.WorkTransforming
}
