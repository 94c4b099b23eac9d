package workflow

// PseudoWork is a minimal Work implementation used by tests and by the HPO
// scenario's generator/actuator pair, which need no domain-specific
// getNewInputOutputMaps policy beyond what WorkState already tracks.
// Grounded on original_source/atlas/.../atlaspandawork.py and
// doma/.../domalsstwork.py's shared shape, generalized down to the two
// policy flags SPEC_FULL.md calls out (UseDependencyToReleaseJobs,
// HasNewInputs).
type PseudoWork struct {
	id               string
	state            WorkState
	useDependency    bool
	hasNewInputs     bool
}

// NewPseudoWork constructs a PseudoWork with the given ID, starting in
// WorkNew.
func NewPseudoWork(id string) *PseudoWork {
	return &PseudoWork{id: id, state: WorkState{Status: WorkNew, RunData: map[string]any{}}}
}

func (w *PseudoWork) ID() string          { return w.id }
func (w *PseudoWork) State() *WorkState   { return &w.state }

func (w *PseudoWork) UseDependencyToReleaseJobs() bool { return w.useDependency }
func (w *PseudoWork) HasNewInputs() bool               { return w.hasNewInputs }

// SetUseDependencyToReleaseJobs configures the dependency-driven release
// policy (§4.F).
func (w *PseudoWork) SetUseDependencyToReleaseJobs(v bool) *PseudoWork { w.useDependency = v; return w }

// SetHasNewInputs configures the new-inputs gate (§4.F).
func (w *PseudoWork) SetHasNewInputs(v bool) *PseudoWork { w.hasNewInputs = v; return w }

var _ Work = (*PseudoWork)(nil)
