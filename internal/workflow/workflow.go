package workflow

import (
	"encoding/json"
	"fmt"
)

// Workflow is a DAG of Works keyed by stable internal IDs, with Conditions
// gating when a Work becomes eligible to materialize (spec.md §4.D).
type Workflow struct {
	works      map[string]Work
	conditions []Condition
	initial    []string
	custom     map[string]CustomPredicate

	// materialized tracks which Work IDs already became Transforms, so
	// getNewWorks never re-emits a node twice.
	materialized map[string]bool

	cancelled bool
	suspended bool
	resumed   bool
}

// New constructs an empty Workflow. initialWorks names the Work IDs used as
// entry points when a DAG's independent roots can't be derived from
// Conditions alone (§4.D's initial_works set).
func New(initialWorks ...string) *Workflow {
	return &Workflow{
		works:        make(map[string]Work),
		custom:       make(map[string]CustomPredicate),
		materialized: make(map[string]bool),
		initial:      initialWorks,
	}
}

// AddWork registers a Work node (the works_template/works blueprint).
func (wf *Workflow) AddWork(w Work) {
	wf.works[w.ID()] = w
}

// AddCondition registers an edge of the DAG.
func (wf *Workflow) AddCondition(c Condition) {
	wf.conditions = append(wf.conditions, c)
}

// RegisterCustomPredicate binds a name used by PredicateCustom conditions.
func (wf *Workflow) RegisterCustomPredicate(name string, fn CustomPredicate) {
	wf.custom[name] = fn
}

// Work looks up a node by ID.
func (wf *Workflow) Work(id string) (Work, bool) {
	w, ok := wf.works[id]
	return w, ok
}

// getNewWorks returns works whose preconditions are met but that are not yet
// materialized. Initial works are always eligible once, on the first call;
// thereafter nodes become eligible only by satisfying a Condition whose
// CurrentWork has reached a qualifying state. Cycle-safe: a visited set by
// node ID prevents a single call from reconsidering the same target twice
// (§9 "use node IDs for edges... compute reachability with explicit visited
// sets").
//
// A PredicateGenerateNewTask/PredicateCustom condition is a loop-back edge
// (the S1 HPO generator/actuator cycle, §9): unlike every other edge, its
// TrueWork target is allowed to re-materialize even after it already has
// once, since that's the entire point of the edge. Re-materializing clears
// the target's WorkState so the new Transform starts clean rather than
// inheriting the prior cycle's terminal status.
//
// A Condition whose Evaluate is false materializes FalseWork instead, when
// set (§4.D's condition tuple names both branches).
func (wf *Workflow) GetNewWorks() []Work {
	var out []Work
	visited := make(map[string]bool)

	for _, id := range wf.initial {
		if wf.materialized[id] || visited[id] {
			continue
		}
		visited[id] = true
		if w, ok := wf.works[id]; ok {
			out = append(out, w)
			wf.materialized[id] = true
		}
	}

	for _, cond := range wf.conditions {
		cur, ok := wf.works[cond.CurrentWork]
		if !ok {
			continue
		}
		// A Work materialized by this same call has not run yet; its
		// Conditions are first evaluated on a later call.
		if visited[cond.CurrentWork] {
			continue
		}

		var target string
		isRegenEdge := false
		if cond.Evaluate(cur, wf.custom) {
			target = cond.TrueWork
			isRegenEdge = cond.Predicate == PredicateGenerateNewTask || cond.Predicate == PredicateCustom
		} else {
			target = cond.FalseWork
		}
		if target == "" || visited[target] {
			continue
		}

		if wf.materialized[target] {
			if !isRegenEdge {
				continue
			}
			delete(wf.materialized, target)
			if w, ok := wf.works[target]; ok {
				*w.State() = WorkState{}
			}
		}

		visited[target] = true
		if w, ok := wf.works[target]; ok {
			out = append(out, w)
			wf.materialized[target] = true
		}
	}
	return out
}

// getCurrentWorks returns works with an active (already materialized)
// Transform.
func (wf *Workflow) GetCurrentWorks() []Work {
	var out []Work
	for id := range wf.materialized {
		if w, ok := wf.works[id]; ok {
			out = append(out, w)
		}
	}
	return out
}

// SyncWorkData merges a Transform's running data back into the matching
// Work node. Idempotent: applying the same (status, substatus, runData)
// twice leaves the Work in the same state (testable property 6).
func (wf *Workflow) SyncWorkData(workID string, status, substatus WorkStatus, runData map[string]any) error {
	w, ok := wf.works[workID]
	if !ok {
		return fmt.Errorf("workflow: unknown work %q", workID)
	}
	state := w.State()
	state.Status = status
	state.Substatus = substatus
	if runData != nil {
		merged := make(map[string]any, len(runData))
		for k, v := range runData {
			merged[k] = v
		}
		state.RunData = merged
	}
	return nil
}

// IsFinished reports whether every materialized Work reached WorkFinished.
func (wf *Workflow) IsFinished() bool { return wf.allTerminal(func(s WorkStatus) bool { return s == WorkFinished }) }

// IsSubfinished reports whether every materialized Work is terminal and at
// least one is WorkSubFinished (and none Failed/Cancelled).
func (wf *Workflow) IsSubfinished() bool {
	if !wf.IsTerminated() {
		return false
	}
	anySub := false
	for id := range wf.materialized {
		w, ok := wf.works[id]
		if !ok {
			continue
		}
		s := w.State().Status
		if s == WorkFailed || s == WorkCancelled {
			return false
		}
		if s == WorkSubFinished {
			anySub = true
		}
	}
	return anySub
}

// IsFailed reports whether any materialized Work reached WorkFailed.
func (wf *Workflow) IsFailed() bool {
	for id := range wf.materialized {
		if w, ok := wf.works[id]; ok && w.State().Status == WorkFailed {
			return true
		}
	}
	return false
}

// IsCancelled reports whether the workflow was explicitly cancelled and all
// materialized works have reached a terminal state.
func (wf *Workflow) IsCancelled() bool { return wf.cancelled && wf.IsTerminated() }

// IsSuspended reports whether the workflow is suspended and not yet resumed.
func (wf *Workflow) IsSuspended() bool { return wf.suspended && !wf.resumed }

// IsExpired is a placeholder hook for time-based expiry; the workflow
// engine itself has no clock, so expiry is decided by the Clerk agent
// comparing Request.ExpiredAt against now and calling CancelWorks.
func (wf *Workflow) IsExpired() bool { return false }

// IsTerminated reports whether every materialized Work is in a terminal
// state and there is no remaining unmaterialized eligible work.
func (wf *Workflow) IsTerminated() bool {
	if len(wf.GetNewWorks()) > 0 {
		return false
	}
	return wf.allTerminal(func(s WorkStatus) bool { return true })
}

func (wf *Workflow) allTerminal(accept func(WorkStatus) bool) bool {
	if len(wf.materialized) == 0 {
		return false
	}
	for id := range wf.materialized {
		w, ok := wf.works[id]
		if !ok {
			continue
		}
		s := w.State().Status
		if !s.IsTerminal() {
			return false
		}
		if !accept(s) {
			return false
		}
	}
	return true
}

// GetTerminatedMsg summarizes why the workflow terminated, for the Message
// emitted at Request state changes.
func (wf *Workflow) GetTerminatedMsg() string {
	switch {
	case wf.IsCancelled():
		return "workflow cancelled"
	case wf.IsFailed():
		return "workflow failed"
	case wf.IsSubfinished():
		return "workflow subfinished"
	case wf.IsFinished():
		return "workflow finished"
	default:
		return "workflow not terminated"
	}
}

// ResumeWorks marks the workflow resumed, consumed by the Transformer/
// Carrier to restart polling on previously-suspended Transforms.
func (wf *Workflow) ResumeWorks() { wf.suspended = false; wf.resumed = true; wf.cancelled = false }

// CancelWorks marks the workflow cancelled.
func (wf *Workflow) CancelWorks() { wf.cancelled = true }

// SuspendWorks marks the workflow suspended.
func (wf *Workflow) SuspendWorks() { wf.suspended = true; wf.resumed = false }

// runningSnapshot is the JSON shape of GetRunningData's output: per-work
// mutable state, keyed by Work ID, plus workflow-level flags.
type runningSnapshot struct {
	Materialized map[string]bool            `json:"materialized"`
	WorkStates   map[string]*WorkState      `json:"work_states"`
	Cancelled    bool                       `json:"cancelled"`
	Suspended    bool                       `json:"suspended"`
	Resumed      bool                       `json:"resumed"`
}

// GetRunningData serializes the Workflow's mutable run state (§9's
// static/running split; this is the `running_metadata` half). The static
// half — which Works and Conditions exist — is reconstructed by the caller
// from request_metadata before LoadRunningData is applied.
func (wf *Workflow) GetRunningData() ([]byte, error) {
	snap := runningSnapshot{
		Materialized: wf.materialized,
		WorkStates:   make(map[string]*WorkState, len(wf.works)),
		Cancelled:    wf.cancelled,
		Suspended:    wf.suspended,
		Resumed:      wf.resumed,
	}
	for id, w := range wf.works {
		snap.WorkStates[id] = w.State()
	}
	return json.Marshal(snap)
}

// LoadRunningData restores mutable run state onto an already-AddWork'd
// Workflow (the static half must already be in place). Round-tripping
// GetRunningData -> LoadRunningData onto a freshly-built Workflow of the
// same shape satisfies testable property 5's deep-equality requirement.
func (wf *Workflow) LoadRunningData(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var snap runningSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("workflow: load running data: %w", err)
	}
	wf.materialized = snap.Materialized
	if wf.materialized == nil {
		wf.materialized = make(map[string]bool)
	}
	wf.cancelled = snap.Cancelled
	wf.suspended = snap.Suspended
	wf.resumed = snap.Resumed
	for id, state := range snap.WorkStates {
		if w, ok := wf.works[id]; ok {
			*w.State() = *state.clone()
		}
	}
	return nil
}
