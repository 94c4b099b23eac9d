package workflow

import "encoding/json"

// Blueprint is the static half of a Workflow (§9's static/running split):
// which Work IDs exist, how they're wired by Condition, and which are
// initial roots. It never changes after a Request is created, and is what
// request_metadata.workflow holds. Custom predicates are registered by name
// and must be re-bound by the caller on load (spec.md's Non-goals exclude a
// general workflow DSL engine; Blueprint only records shape, not behavior).
type Blueprint struct {
	WorkIDs    []string    `json:"work_ids"`
	Conditions []Condition `json:"conditions"`
	Initial    []string    `json:"initial_works"`
}

// NewBlueprint captures wf's current static shape.
func NewBlueprint(wf *Workflow) Blueprint {
	bp := Blueprint{Conditions: wf.conditions, Initial: wf.initial}
	for id := range wf.works {
		bp.WorkIDs = append(bp.WorkIDs, id)
	}
	return bp
}

// Marshal encodes the Blueprint for storage in request_metadata.
func (bp Blueprint) Marshal() ([]byte, error) { return json.Marshal(bp) }

// UnmarshalBlueprint decodes a Blueprint from request_metadata.
func UnmarshalBlueprint(data []byte) (Blueprint, error) {
	var bp Blueprint
	err := json.Unmarshal(data, &bp)
	return bp, err
}

// Rebuild constructs an empty Workflow from the Blueprint's shape, using
// newWork to instantiate each Work ID (the caller supplies domain-specific
// construction; Blueprint itself only knows IDs). Callers then apply
// LoadRunningData to restore mutable state.
func (bp Blueprint) Rebuild(newWork func(id string) Work) *Workflow {
	wf := New(bp.Initial...)
	for _, id := range bp.WorkIDs {
		wf.AddWork(newWork(id))
	}
	wf.conditions = bp.Conditions
	return wf
}
