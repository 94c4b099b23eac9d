// Package workflow implements the in-memory DAG-of-Works engine (spec.md
// §4.D): a pure, I/O-free evaluator over Work node states and the
// Conditions that gate new work materialization. The Work interface shape
// (get_new_input_output_maps/get_processing/syn_work_status) is grounded on
// original_source/atlas/lib/idds/atlas/workflow/atlaspandawork.py and
// original_source/doma/lib/idds/doma/workflow/domalsstwork.py. The
// Workflow/Condition/generator-actuator design itself is grounded on
// original_source/main/lib/idds/tests/test_activelearning.py, which wires
// Condition(work.is_finished, current_work=work, true_work=actuator,
// false_work=None) and Condition(actuator.generate_new_task,
// current_work=actuator, true_work=work, false_work=None) into the same S1
// HPO loop this package implements, consumed via wf.get_new_works() in
// original_source/main/lib/idds/agents/clerk/clerk.py; the §9 design note's
// "replace closures with a tagged enum of predicates" asks for the same DAG,
// just dispatched by Predicate value instead of a bound method reference.
package workflow

// WorkStatus mirrors model.TransformStatus's vocabulary at the Work level;
// the workflow engine never imports internal/model so it stays storage
// agnostic, per §4.D's "pure function of its loaded state" requirement.
type WorkStatus string

const (
	WorkNew          WorkStatus = "new"
	WorkReady        WorkStatus = "ready"
	WorkTransforming WorkStatus = "transforming"
	WorkFinished     WorkStatus = "finished"
	WorkSubFinished  WorkStatus = "subfinished"
	WorkFailed       WorkStatus = "failed"
	WorkCancelled    WorkStatus = "cancelled"
	WorkSuspended    WorkStatus = "suspended"
)

func (s WorkStatus) IsTerminal() bool {
	switch s {
	case WorkFinished, WorkSubFinished, WorkFailed, WorkCancelled, WorkSuspended:
		return true
	default:
		return false
	}
}

// Work is one logical task node in a Workflow. It becomes a Transform once
// materialized. Implementations supply the domain-specific policy
// (getNewInputOutputMaps, getProcessing); the engine only reads/writes the
// WorkState every Work must expose.
type Work interface {
	// ID is the stable internal node identifier used for DAG edges; never
	// a pointer, per §9's "use node IDs for edges" design note.
	ID() string
	State() *WorkState

	// UseDependencyToReleaseJobs reports whether this Work only emits a map
	// once all of its inputs_dependency Contents resolve to existing
	// upstream Output Contents (§4.F's dependency-driven release policy).
	UseDependencyToReleaseJobs() bool
	// HasNewInputs reports whether the Work still expects more inputs to
	// arrive; when false and the primary input Collection is closed with
	// nothing left to release, new-map generation stops (§4.F's new-inputs
	// gate).
	HasNewInputs() bool
}

// WorkState is the mutable half of a Work: the part syncWorkData overwrites
// every cycle. TransformID is zero until the Work has been materialized.
type WorkState struct {
	TransformID int64
	Status      WorkStatus
	Substatus   WorkStatus
	RunData     map[string]any

	// GenerateNewTask is set by a Work on terminal completion when its
	// downstream Condition should re-materialize a Custom/GenerateNewTask
	// edge target (S1 HPO loop's generator/actuator re-trigger).
	GenerateNewTask bool
}

func (s *WorkState) clone() *WorkState {
	cp := *s
	cp.RunData = make(map[string]any, len(s.RunData))
	for k, v := range s.RunData {
		cp.RunData[k] = v
	}
	return &cp
}
