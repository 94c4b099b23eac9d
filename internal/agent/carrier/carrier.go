// Package carrier implements the Carrier agent of spec.md §4.G: it drives
// each Transform's Processing against an external workload manager through
// the narrow idds/driver interface, reconciles per-job status into Content
// rows, and honors pending cancel/suspend/resume/expire/finish operations.
// Grounded on original_source/atlas/lib/idds/atlas/workflow/
// atlaspandawork.py's submission/polling/reconciliation cycle and
// get_processing_status_from_panda_status table.
package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/iddsorg/idds/internal/depresolver"
	"github.com/iddsorg/idds/internal/driver"
	"github.com/iddsorg/idds/internal/logging"
	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// Agent drives the Processing lifecycle.
type Agent struct {
	store    store.Store
	driver   driver.Driver
	resolver *depresolver.Resolver
	workerID string
	bulkSize int

	maxSubFinishedRetries int
	maxPollingRetries     int
	jobBatchSize          int

	logger *logging.Logger
}

// New constructs a Carrier Agent.
func New(s store.Store, drv driver.Driver, resolver *depresolver.Resolver, workerID string, bulkSize int) *Agent {
	if bulkSize <= 0 {
		bulkSize = 100
	}
	return &Agent{
		store: s, driver: drv, resolver: resolver, workerID: workerID, bulkSize: bulkSize,
		maxSubFinishedRetries: 3,
		maxPollingRetries:     3,
		jobBatchSize:          2000,
		logger:                logging.NewComponentLogger("carrier"),
	}
}

// taskParamEnvelope is processing_metadata.processing: the task_param
// payload Transformer produced, carried unmodified to the driver.
type taskParamEnvelope struct {
	TaskParam driver.TaskParam `json:"task_param"`
}

func taskParamFrom(metadata []byte) (driver.TaskParam, error) {
	var env taskParamEnvelope
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &env); err != nil {
			return nil, fmt.Errorf("carrier: decode processing_metadata: %w", err)
		}
	}
	if env.TaskParam == nil {
		env.TaskParam = driver.TaskParam{}
	}
	return env.TaskParam, nil
}

// PullProcessings implements §4.G's per-cycle drive: claim due Processings
// and advance each one step.
func (a *Agent) PullProcessings(ctx context.Context) (int, error) {
	processings, err := a.store.Processings().ClaimForUpdate(ctx, a.workerID, store.ListOptions{Limit: a.bulkSize})
	if err != nil {
		return 0, fmt.Errorf("carrier: claim processings: %w", err)
	}

	processed := 0
	for _, p := range processings {
		if p.Status.IsTerminal() && p.Substatus == model.SubstatusNone {
			_ = a.store.Processings().Release(ctx, p.ProcessingID)
			continue
		}
		if err := a.processOne(ctx, p); err != nil {
			a.logger.Error("carrier: processing %d failed: %v", p.ProcessingID, err)
			p.Status = model.ProcessingFailed
			p.Errors = err.Error()
			_ = a.store.Processings().Update(ctx, p)
			continue
		}
		processed++
	}
	return processed, nil
}

func (a *Agent) processOne(ctx context.Context, p *model.Processing) error {
	if p.Substatus != model.SubstatusNone {
		if err := a.honorOperation(ctx, p); err != nil {
			return err
		}
	}

	switch {
	case p.WorkloadID == "":
		if err := a.submit(ctx, p); err != nil {
			return err
		}
	case !p.Status.IsTerminal():
		details, err := a.driver.GetTaskDetails(ctx, p.WorkloadID)
		if err != nil {
			return fmt.Errorf("carrier: get task details for %s: %w", p.WorkloadID, err)
		}
		// Reconcile per-job content status before deciding the Processing's
		// own status: the terminal-but-pending-flush rule below needs to
		// know whether this very cycle just wrote new content updates.
		contentsUpdated, err := a.reconcileJobs(ctx, p, details.PandaIDs)
		if err != nil {
			return err
		}
		if err := a.applyTaskStatus(ctx, p, details.Status, contentsUpdated); err != nil {
			return err
		}
	}

	return a.store.Processings().Update(ctx, p)
}

// honorOperation services a pending control operation (§4.G step 1) before
// any submission/polling happens this cycle.
func (a *Agent) honorOperation(ctx context.Context, p *model.Processing) error {
	switch p.Substatus {
	case model.SubstatusToCancel:
		if p.WorkloadID != "" {
			if err := a.driver.KillTask(ctx, p.WorkloadID); err != nil {
				return fmt.Errorf("carrier: kill task %s: %w", p.WorkloadID, err)
			}
		}
		p.Status = model.ProcessingCancelled
	case model.SubstatusToExpire:
		if p.WorkloadID != "" {
			if err := a.driver.KillTask(ctx, p.WorkloadID); err != nil {
				return fmt.Errorf("carrier: kill expired task %s: %w", p.WorkloadID, err)
			}
		}
		now := time.Now()
		p.ExpiredAt = &now
		p.Status = model.ProcessingCancelled
	case model.SubstatusToSuspend:
		if p.WorkloadID != "" {
			if err := a.driver.KillTask(ctx, p.WorkloadID); err != nil {
				return fmt.Errorf("carrier: suspend task %s: %w", p.WorkloadID, err)
			}
		}
		// Clearing WorkloadID routes the next cycle back through submit(),
		// which is how a suspended Processing is later resumed.
		p.WorkloadID = ""
		p.Status = model.ProcessingSubmitting
	case model.SubstatusToResume:
		// Nothing to do: a prior suspend already cleared WorkloadID, so the
		// submit/WorkloadID=="" branch below fires on its own next cycle.
	case model.SubstatusToFinish:
		if p.WorkloadID != "" {
			if err := a.driver.FinishTask(ctx, p.WorkloadID, true); err != nil {
				return fmt.Errorf("carrier: finish task %s: %w", p.WorkloadID, err)
			}
		}
	case model.SubstatusToForceFinish:
		if p.WorkloadID != "" {
			if err := a.driver.FinishTask(ctx, p.WorkloadID, false); err != nil {
				return fmt.Errorf("carrier: force-finish task %s: %w", p.WorkloadID, err)
			}
		}
		p.Status = model.ProcessingFinished
		now := time.Now()
		p.FinishedAt = &now
	}
	p.Substatus = model.SubstatusNone
	p.PollingRetries = 0
	return nil
}

// submit implements §4.G step 2: submit via the driver if no workload_id is
// bound yet. Submission failure bumps PollingRetries and leaves the
// Processing Submitting, except that once PollingRetries reaches a positive
// MaxRetries the Processing is marked Failed; it is not itself a cycle
// failure.
func (a *Agent) submit(ctx context.Context, p *model.Processing) error {
	taskParam, err := taskParamFrom(p.ProcessingMetadata)
	if err != nil {
		return err
	}
	workloadID, err := a.driver.SubmitTask(ctx, taskParam)
	if err != nil {
		p.PollingRetries++
		if p.MaxRetries > 0 && p.PollingRetries >= p.MaxRetries {
			p.Status = model.ProcessingFailed
			p.Errors = err.Error()
		}
		return nil
	}
	p.WorkloadID = workloadID
	now := time.Now()
	p.SubmittedAt = &now
	p.Status = model.ProcessingSubmitted
	p.PollingRetries = 0
	return nil
}

// applyTaskStatus implements §4.G steps 3-4: map the external status and,
// on a SubFinished result with retries remaining, reactivate via the
// driver's retry endpoint instead of accepting the terminal state.
//
// Terminal-but-pending-flush rule: a terminal external status does not by
// itself commit the Processing to that terminal status. If this cycle's
// reconcileJobs just wrote content updates (contentsUpdated), the task is
// still draining — hold Running unconditionally so the next cycle can poll
// again rather than dropping those late updates. Otherwise, give the
// terminal status up to maxPollingRetries cycles to settle (panda can issue
// a terminal status transiently before a retryTask call takes effect)
// before finally committing it. Grounded directly on
// atlaspandawork.py's poll_processing_updates (the updated_contents/
// polling_retries<3 checks around ProcessingStatus.Running).
func (a *Agent) applyTaskStatus(ctx context.Context, p *model.Processing, external string, contentsUpdated bool) error {
	mapped := model.ProcessingStatus(driver.MapExternalStatus(external))

	if mapped == model.ProcessingSubFinished && p.RetryNumber < a.maxSubFinishedRetries {
		taskParam, err := taskParamFrom(p.ProcessingMetadata)
		if err == nil {
			if err := a.driver.RetryTask(ctx, p.WorkloadID, taskParam); err == nil {
				p.RetryNumber++
				p.Status = model.ProcessingSubmitted
				return nil
			}
		}
	}

	if mapped.IsTerminal() {
		if contentsUpdated {
			p.Status = model.ProcessingRunning
			return nil
		}
		if p.PollingRetries < a.maxPollingRetries {
			p.PollingRetries++
			p.Status = model.ProcessingRunning
			return nil
		}
	}

	p.PollingRetries = 0
	p.Status = mapped
	if mapped == model.ProcessingFinished || mapped == model.ProcessingSubFinished {
		now := time.Now()
		p.FinishedAt = &now
	}
	return nil
}

// contentMeta is the part of content_metadata Carrier owns: the trail of
// PandaIDs a Content has been resubmitted under.
type contentMeta struct {
	OldPandaID []string `json:"old_panda_id,omitempty"`
}

// jobStatusToContentStatus is the per-job analog of driver.MapExternalStatus,
// coarser since Content only tracks new/processing/available/failed states.
func jobStatusToContentStatus(jobStatus string) model.ContentStatus {
	switch driver.MapExternalStatus(jobStatus) {
	case "finished":
		return model.ContentAvailable
	case "failed":
		return model.ContentFailed
	case "submitting", "submitted", "running":
		return model.ContentProcessing
	default:
		return model.ContentProcessing
	}
}

// reconcileJobs implements §4.G step 5: pull the job list in batches of
// jobBatchSize, map each external job to a Content via the per-input
// filename index, and write Content status updates. Returns whether any
// Content status actually changed this cycle, the signal applyTaskStatus's
// terminal-but-pending-flush rule needs.
func (a *Agent) reconcileJobs(ctx context.Context, p *model.Processing, pandaIDs []int64) (bool, error) {
	if len(pandaIDs) == 0 {
		return false, nil
	}

	index, err := a.filenameIndex(ctx, p.TransformID)
	if err != nil {
		return false, err
	}

	updated := false
	for start := 0; start < len(pandaIDs); start += a.jobBatchSize {
		end := start + a.jobBatchSize
		if end > len(pandaIDs) {
			end = len(pandaIDs)
		}
		jobs, err := a.driver.GetJobStatus(ctx, pandaIDs[start:end])
		if err != nil {
			return updated, fmt.Errorf("carrier: get job status: %w", err)
		}
		batchUpdated, err := a.applyJobStatuses(ctx, index, jobs)
		if batchUpdated {
			updated = true
		}
		if err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// filenameIndex maps every input Content's LFN (Content.Name) to itself,
// across all of the Transform's input Collections.
func (a *Agent) filenameIndex(ctx context.Context, transformID int64) (map[string]*model.Content, error) {
	collections, err := a.store.Collections().ListByTransform(ctx, transformID)
	if err != nil {
		return nil, fmt.Errorf("carrier: list collections for transform %d: %w", transformID, err)
	}
	index := map[string]*model.Content{}
	for _, c := range collections {
		if c.RelationType != model.RelationInput {
			continue
		}
		contents, err := a.store.Contents().ListByCollection(ctx, c.CollID)
		if err != nil {
			return nil, fmt.Errorf("carrier: list contents for collection %d: %w", c.CollID, err)
		}
		for _, ct := range contents {
			index[ct.Name] = ct
		}
	}
	return index, nil
}

// applyJobStatuses writes per-job external-ID/status updates into their
// matching Content rows and reports whether any Content's status actually
// changed this call.
func (a *Agent) applyJobStatuses(ctx context.Context, index map[string]*model.Content, jobs []driver.JobInfo) (bool, error) {
	updated := false
	for _, job := range jobs {
		newExternalID := strconv.FormatInt(job.PandaID, 10)
		for _, f := range job.Files {
			content, ok := index[f.LFN]
			if !ok {
				continue
			}

			if content.ExternalContentID != "" && content.ExternalContentID != newExternalID {
				var cm contentMeta
				if len(content.ContentMetadata) > 0 {
					_ = json.Unmarshal(content.ContentMetadata, &cm)
				}
				cm.OldPandaID = append(cm.OldPandaID, content.ExternalContentID)
				blob, err := json.Marshal(cm)
				if err != nil {
					return updated, err
				}
				content.ContentMetadata = blob
			}
			if err := a.store.Contents().UpdateExternalID(ctx, content.ContentID, newExternalID, content.ContentMetadata); err != nil {
				return updated, fmt.Errorf("carrier: update content %d external id: %w", content.ContentID, err)
			}
			content.ExternalContentID = newExternalID

			newStatus := jobStatusToContentStatus(job.JobStatus)
			if newStatus == content.Status {
				continue
			}
			if err := a.resolver.Resolve(ctx, content.ContentID, newStatus); err != nil {
				return updated, fmt.Errorf("carrier: resolve content %d status: %w", content.ContentID, err)
			}
			content.Status = newStatus
			updated = true
		}
	}
	return updated, nil
}
