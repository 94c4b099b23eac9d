// Package driver defines the narrow backend task driver interface Carrier
// depends on (spec.md §6), and the external→internal status mapping table
// shared by every concrete driver. The only concrete implementation in this
// module is idds/driver/panda; HTCondor/generic backends are out of scope
// per spec.md §1's Non-goals, named here only as the interface they'd
// satisfy.
package driver

import "context"

// TaskParam is the backend-specific submission payload produced by the
// Transformer (processing_metadata.task_param) and handed to Driver
// unmodified.
type TaskParam map[string]any

// JobFile is one file entry on a JobInfo, in submission order; the first
// entry's logical name identifies the originating input Content (§4.G
// "per-input filename index").
type JobFile struct {
	LFN string
}

// JobInfo is one external job's reconciled state, used by Carrier to write
// per-Content substatus updates.
type JobInfo struct {
	PandaID   int64
	JobStatus string
	Files     []JobFile
}

// TaskDetails is the richer per-task view used for per-job reconciliation.
type TaskDetails struct {
	Status   string
	PandaIDs []int64
}

// Driver is the backend task driver interface the core depends on,
// specified exactly in spec.md §6.
type Driver interface {
	SubmitTask(ctx context.Context, param TaskParam) (workloadID string, err error)
	GetTaskStatus(ctx context.Context, workloadID string) (status string, err error)
	GetTaskDetails(ctx context.Context, workloadID string) (TaskDetails, error)
	GetJobStatus(ctx context.Context, ids []int64) ([]JobInfo, error)
	KillTask(ctx context.Context, workloadID string) error
	FinishTask(ctx context.Context, workloadID string, soft bool) error
	RetryTask(ctx context.Context, workloadID string, newParams TaskParam) error
	// GetJobIDsInTimeRange re-discovers a lost workload_id by task name.
	// No agent in this module calls it, and Carrier submits tasks without
	// a task-name uniqueness check.
	GetJobIDsInTimeRange(ctx context.Context, start int64, taskType string) (map[string]TaskDetails, error)
}

// MapExternalStatus implements the canonical external→internal status
// mapping table of spec.md §4.G. Unrecognized statuses conservatively map
// to "submitted" rather than erroring, matching the table's "(anything
// else) -> Submitted" row.
func MapExternalStatus(external string) string {
	switch external {
	case "registered", "defined", "assigning":
		return "submitting"
	case "ready", "pending", "scouting", "scouted", "prepared", "topreprocess", "preprocessing":
		return "submitted"
	case "running", "toretry", "toincexec", "throttled":
		return "running"
	case "done":
		return "finished"
	case "finished", "paused":
		return "subfinished"
	case "failed", "aborted", "broken", "exhausted":
		return "failed"
	default:
		return "submitted"
	}
}
