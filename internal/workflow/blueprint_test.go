package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlueprintRoundTripRebuildsEquivalentWorkflow(t *testing.T) {
	wf := New("generator")
	wf.AddWork(NewPseudoWork("generator"))
	wf.AddWork(NewPseudoWork("actuator"))
	wf.AddCondition(Condition{CurrentWork: "generator", Predicate: PredicateIsFinished, TrueWork: "actuator"})

	bp := NewBlueprint(wf)
	data, err := bp.Marshal()
	require.NoError(t, err)

	gotBP, err := UnmarshalBlueprint(data)
	require.NoError(t, err)

	rebuilt := gotBP.Rebuild(func(id string) Work { return NewPseudoWork(id) })
	require.Len(t, rebuilt.GetNewWorks(), 1, "rebuilt workflow must still materialize its initial work")
}
