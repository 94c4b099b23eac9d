// Package registry resolves the Work implementation bound to a Request's
// Transforms, by kind name, the way the original's load_plugins/
// load_plugin_sequence (idds.common.plugin.plugin_utils, referenced from
// agents/common/baseagent.py) resolves a plugin class from a config
// section instead of hardcoding it. A deployment registers one
// constructor per work "kind" at startup; Clerk and Transformer never
// know the concrete type, only the kind name carried in each Work's ID
// (encoded as "<kind>:<rest>" by convention) and in Transform.TransformMetadata.
package registry

import (
	"context"
	"strings"

	"github.com/iddsorg/idds/internal/agent/clerk"
	"github.com/iddsorg/idds/internal/agent/transformer"
	"github.com/iddsorg/idds/internal/workflow"
)

// KindOf extracts the "<kind>:" prefix from a Work ID, defaulting to
// "pseudo" when the ID carries no recognized prefix — the same fallback
// PseudoWork itself exists for (tests and trivial scenarios need no real
// plugin at all).
func KindOf(workID string) string {
	if i := strings.IndexByte(workID, ':'); i > 0 {
		return workID[:i]
	}
	return "pseudo"
}

// ClerkRegistry maps work kind to a clerk.WorkFactory constructor.
type ClerkRegistry struct {
	builders map[string]func(workID string) workflow.Work
}

// NewClerkRegistry returns a registry pre-seeded with the "pseudo" kind,
// always available as a fallback for scenarios with no domain-specific
// Work plugin configured.
func NewClerkRegistry() *ClerkRegistry {
	r := &ClerkRegistry{builders: map[string]func(workID string) workflow.Work{}}
	r.Register("pseudo", func(workID string) workflow.Work { return workflow.NewPseudoWork(workID) })
	return r
}

// Register binds a work kind to a constructor. Re-registering a kind
// replaces its constructor.
func (r *ClerkRegistry) Register(kind string, build func(workID string) workflow.Work) {
	r.builders[kind] = build
}

// Factory adapts the registry into a clerk.WorkFactory, falling back to
// "pseudo" for any kind with no registered constructor rather than
// panicking mid-cycle — an unrecognized Work still needs a State() to
// track, even if its domain-specific behavior is unavailable.
func (r *ClerkRegistry) Factory() clerk.WorkFactory {
	return func(workID string) workflow.Work {
		build, ok := r.builders[KindOf(workID)]
		if !ok {
			build = r.builders["pseudo"]
		}
		return build(workID)
	}
}

// TransformerRegistry maps work kind to a transformer.WorkFactory constructor.
type TransformerRegistry struct {
	builders map[string]func(workID string) transformer.Work
}

// NewTransformerRegistry returns an empty registry; callers register every
// kind their deployment's Clerk side can emit before starting Transformer.
func NewTransformerRegistry() *TransformerRegistry {
	return &TransformerRegistry{builders: map[string]func(workID string) transformer.Work{}}
}

func (r *TransformerRegistry) Register(kind string, build func(workID string) transformer.Work) {
	r.builders[kind] = build
}

// Factory adapts the registry into a transformer.WorkFactory. An
// unrecognized kind indicates a deployment that forgot to register a
// plugin for it (load_plugin_sequence's AgentPluginError case); rather
// than crash the whole poll cycle over one misconfigured Transform, it
// returns unknownWork, which reports no collections and never advances —
// the Transform sits visibly stuck in transforming, and the Transformer
// cycle itself continues for every other, correctly configured kind.
func (r *TransformerRegistry) Factory() transformer.WorkFactory {
	return func(workID string) transformer.Work {
		build, ok := r.builders[KindOf(workID)]
		if !ok {
			return &unknownWork{id: workID}
		}
		return build(workID)
	}
}

// unknownWork is returned for a work kind with no registered constructor.
type unknownWork struct {
	id    string
	state workflow.WorkState
}

func (w unknownWork) ID() string                      { return w.id }
func (w *unknownWork) State() *workflow.WorkState      { return &w.state }
func (w unknownWork) UseDependencyToReleaseJobs() bool { return false }
func (w unknownWork) HasNewInputs() bool               { return false }
func (w unknownWork) Collections() []transformer.CollectionSpec { return nil }
func (w unknownWork) GetNewInputOutputMaps(ctx context.Context, alreadyMapped map[string]bool) ([]transformer.InputOutputMap, error) {
	return nil, nil
}
func (w unknownWork) GetProcessing(maps []transformer.InputOutputMap, withoutCreating bool) (map[string]any, bool) {
	return nil, false
}
func (w unknownWork) SyncWorkStatus(processingsTerminated, allOutputsFlushed bool) workflow.WorkStatus {
	return workflow.WorkTransforming
}

var _ transformer.Work = (*unknownWork)(nil)
