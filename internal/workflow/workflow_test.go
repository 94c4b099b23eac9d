package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetNewWorksReturnsInitialWorksOnce(t *testing.T) {
	wf := New("generator")
	gen := NewPseudoWork("generator")
	wf.AddWork(gen)

	first := wf.GetNewWorks()
	require.Len(t, first, 1)
	require.Equal(t, "generator", first[0].ID())

	second := wf.GetNewWorks()
	require.Empty(t, second, "an already-materialized work must not be re-emitted")
}

func TestGetNewWorksFollowsConditionToTrueWork(t *testing.T) {
	wf := New("generator")
	gen := NewPseudoWork("generator")
	actuator := NewPseudoWork("actuator")
	wf.AddWork(gen)
	wf.AddWork(actuator)
	wf.AddCondition(Condition{CurrentWork: "generator", Predicate: PredicateIsFinished, TrueWork: "actuator"})

	wf.GetNewWorks() // materializes generator

	require.Empty(t, wf.GetNewWorks(), "actuator must not appear before generator finishes")

	gen.State().Status = WorkFinished
	newWorks := wf.GetNewWorks()
	require.Len(t, newWorks, 1)
	require.Equal(t, "actuator", newWorks[0].ID())
}

func TestHPOLoopRegeneratesGeneratorOnCustomPredicate(t *testing.T) {
	wf := New("generator")
	gen := NewPseudoWork("generator")
	actuator := NewPseudoWork("actuator")
	wf.AddWork(gen)
	wf.AddWork(actuator)
	wf.AddCondition(Condition{CurrentWork: "generator", Predicate: PredicateIsFinished, TrueWork: "actuator"})
	wf.AddCondition(Condition{CurrentWork: "actuator", Predicate: PredicateGenerateNewTask, TrueWork: "generator"})

	wf.GetNewWorks()
	gen.State().Status = WorkFinished
	wf.GetNewWorks() // materializes actuator

	actuator.State().Status = WorkFinished
	actuator.State().GenerateNewTask = true

	regenerated := wf.GetNewWorks()
	require.Len(t, regenerated, 1)
	require.Equal(t, "generator", regenerated[0].ID(), "a finished actuator with generate_new_task must re-materialize the generator")
}

func TestGetNewWorksFollowsConditionToFalseWorkWhenEvaluateFails(t *testing.T) {
	wf := New("generator")
	gen := NewPseudoWork("generator")
	onFail := NewPseudoWork("on-fail")
	onFinish := NewPseudoWork("on-finish")
	wf.AddWork(gen)
	wf.AddWork(onFail)
	wf.AddWork(onFinish)
	wf.AddCondition(Condition{CurrentWork: "generator", Predicate: PredicateIsFinished, TrueWork: "on-finish", FalseWork: "on-fail"})

	wf.GetNewWorks() // materializes generator

	newWorks := wf.GetNewWorks()
	require.Len(t, newWorks, 1)
	require.Equal(t, "on-fail", newWorks[0].ID(), "an unmet predicate must materialize FalseWork, not nothing")

	gen.State().Status = WorkFinished
	newWorks = wf.GetNewWorks()
	require.Len(t, newWorks, 1)
	require.Equal(t, "on-finish", newWorks[0].ID())
}

func TestSyncWorkDataIsIdempotent(t *testing.T) {
	wf := New("w1")
	w := NewPseudoWork("w1")
	wf.AddWork(w)

	data := map[string]any{"processed": 7.0}
	require.NoError(t, wf.SyncWorkData("w1", WorkTransforming, WorkTransforming, data))
	first := *w.State()

	require.NoError(t, wf.SyncWorkData("w1", WorkTransforming, WorkTransforming, data))
	second := *w.State()

	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.RunData, second.RunData)
}

func TestIsTerminatedRequiresAllMaterializedWorksTerminal(t *testing.T) {
	wf := New("w1")
	w := NewPseudoWork("w1")
	wf.AddWork(w)
	wf.GetNewWorks()

	require.False(t, wf.IsTerminated())
	w.State().Status = WorkFinished
	require.True(t, wf.IsTerminated())
	require.True(t, wf.IsFinished())
}

func TestRunningDataRoundTrip(t *testing.T) {
	wf := New("w1")
	w := NewPseudoWork("w1")
	wf.AddWork(w)
	wf.GetNewWorks()
	w.State().Status = WorkTransforming
	w.State().RunData = map[string]any{"k": "v"}

	blob, err := wf.GetRunningData()
	require.NoError(t, err)

	wf2 := New("w1")
	w2 := NewPseudoWork("w1")
	wf2.AddWork(w2)
	require.NoError(t, wf2.LoadRunningData(blob))

	require.True(t, wf2.materialized["w1"])
	require.Equal(t, WorkTransforming, w2.State().Status)
	require.Equal(t, "v", w2.State().RunData["k"])
}

func TestCancelWorksMarksWorkflowCancelledOnceTerminal(t *testing.T) {
	wf := New("w1")
	w := NewPseudoWork("w1")
	wf.AddWork(w)
	wf.GetNewWorks()
	wf.CancelWorks()

	require.False(t, wf.IsCancelled(), "cancellation must wait for the work to actually reach a terminal state")
	w.State().Status = WorkCancelled
	require.True(t, wf.IsCancelled())
}
