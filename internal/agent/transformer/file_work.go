package transformer

import (
	"context"

	"github.com/iddsorg/idds/internal/workflow"
)

// FileListWork is a reference Work: one input Collection, one output
// Collection, a fixed list of input files known up front, and one map per
// file whose output name is the input name with OutputSuffix appended.
// Grounded on atlaspandawork.py's get_new_input_output_maps, which walks a
// flat list of not-yet-mapped scope:name pairs and emits one map per file.
type FileListWork struct {
	WorkID        string
	InputScope    string
	InputName     string
	OutputScope   string
	OutputName    string
	OutputSuffix  string
	Files         []string
	TaskParamBase map[string]any

	state workflow.WorkState
}

var _ Work = (*FileListWork)(nil)

func (w *FileListWork) ID() string                            { return w.WorkID }
func (w *FileListWork) State() *workflow.WorkState             { return &w.state }
func (w *FileListWork) UseDependencyToReleaseJobs() bool       { return false }
func (w *FileListWork) HasNewInputs() bool                     { return false }

func (w *FileListWork) Collections() []CollectionSpec {
	return []CollectionSpec{
		{Scope: w.InputScope, Name: w.InputName, RelationType: "input", CollType: "dataset"},
		{Scope: w.OutputScope, Name: w.OutputName, RelationType: "output", CollType: "dataset"},
	}
}

func (w *FileListWork) GetNewInputOutputMaps(ctx context.Context, alreadyMapped map[string]bool) ([]InputOutputMap, error) {
	var maps []InputOutputMap
	for _, f := range w.Files {
		key := w.InputScope + ":" + f
		if alreadyMapped[key] {
			continue
		}
		maps = append(maps, InputOutputMap{
			Inputs:  []ContentSpec{{Scope: w.InputScope, Name: f}},
			Outputs: []ContentSpec{{Scope: w.OutputScope, Name: f + w.OutputSuffix}},
		})
	}
	return maps, nil
}

func (w *FileListWork) GetProcessing(maps []InputOutputMap, withoutCreating bool) (map[string]any, bool) {
	if withoutCreating || len(maps) == 0 {
		return nil, false
	}
	taskParam := map[string]any{}
	for k, v := range w.TaskParamBase {
		taskParam[k] = v
	}
	taskParam["nFiles"] = len(maps)
	return taskParam, true
}

func (w *FileListWork) SyncWorkStatus(processingsTerminated, allOutputsFlushed bool) workflow.WorkStatus {
	if processingsTerminated && allOutputsFlushed {
		return workflow.WorkFinished
	}
	if processingsTerminated {
		return workflow.WorkSubFinished
	}
	return workflow.WorkTransforming
}
