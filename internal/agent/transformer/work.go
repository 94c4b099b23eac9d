// Package transformer implements the Transformer agent of spec.md §4.F: it
// drives a Transform by materializing Collections, asking the bound Work for
// new input->output Content maps, and creating the Transform's single active
// Processing. Grounded on original_source/atlas/lib/idds/atlas/workflow/
// atlaspandawork.py's get_new_input_output_maps/get_processing/
// syn_work_status cycle, adapted onto idds/store and idds/workflow.
package transformer

import (
	"context"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/workflow"
)

// ContentSpec is a single file (or sub-file range) a Work wants materialized
// as a Content row. DependsOnContentID is set by the Work itself when it
// already knows the upstream Content ID an input_dependency resolves
// against (§4.F's dependency-driven release policy puts that knowledge in
// the Work, not in Transformer, since only the Work understands its own
// DAG-internal wiring).
type ContentSpec struct {
	Scope              string
	Name               string
	MinID              int64
	MaxID              int64
	DependsOnContentID *int64
}

// InputOutputMap is one execution unit: a map_id's worth of inputs, outputs,
// logs, and dependency placeholders (§3's Content.map_id).
type InputOutputMap struct {
	Inputs           []ContentSpec
	Outputs          []ContentSpec
	Logs             []ContentSpec
	InputsDependency []ContentSpec
}

// CollectionSpec declares one Collection a Work needs materialized when its
// Transform is first picked up.
type CollectionSpec struct {
	Scope        string
	Name         string
	RelationType model.CollectionRelationType
	CollType     model.CollectionType
}

// Work is the Transformer-facing extension of workflow.Work: the additional
// policy hooks §4.F calls out (getNewInputOutputMaps, getProcessing,
// synWorkStatus) on top of the DAG-level state every Work already exposes
// to Clerk.
type Work interface {
	workflow.Work

	// Collections declares the input/output/log Collections this Work needs;
	// called once, when the Transform is first materialized.
	Collections() []CollectionSpec

	// GetNewInputOutputMaps returns newly-available maps not already
	// represented by alreadyMapped (a set of "scope:name" keys of inputs
	// already persisted as Content rows).
	GetNewInputOutputMaps(ctx context.Context, alreadyMapped map[string]bool) ([]InputOutputMap, error)

	// GetProcessing returns the backend-specific task_param payload for a
	// new Processing, given the cumulative set of maps known so far. ok is
	// false when withoutCreating is true, or when the Work doesn't want a
	// Processing yet (e.g. waiting on more inputs).
	GetProcessing(maps []InputOutputMap, withoutCreating bool) (taskParam map[string]any, ok bool)

	// SyncWorkStatus derives the Work's terminal/non-terminal status from
	// whether its Processings have all terminated and whether every output
	// Content has been flushed.
	SyncWorkStatus(processingsTerminated, allOutputsFlushed bool) workflow.WorkStatus
}

// WorkFactory instantiates a transformer.Work for a work ID recorded in a
// Transform's static metadata by Clerk.
type WorkFactory func(workID string) Work

// MetadataProvider resolves external dataset/container metadata for
// non-pseudo input Collections (§4.F step 1, §6's getMetadata).
type MetadataProvider interface {
	GetMetadata(ctx context.Context, scope, name string) (CollectionMetadata, error)
}

// CollectionMetadata is what an external catalog reports about a dataset.
type CollectionMetadata struct {
	Bytes   int64
	Length  int
	IsOpen  bool
	DIDType string
}
