// Package clerk implements the Clerk agent of spec.md §4.E: it drives
// Requests through New/Extend -> Transforming -> terminal, expanding each
// Request's Workflow into Transform rows and aggregating child states back.
// Grounded on original_source/main/lib/idds/agents/clerk/clerk.py's
// get_new_requests/get_running_requests/get_operation_requests cycle
// structure, adapted onto idds/store and idds/workflow.
package clerk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iddsorg/idds/internal/logging"
	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
	"github.com/iddsorg/idds/internal/workflow"
)

// WorkFactory instantiates a Work implementation for a work ID read back
// out of a Blueprint (client-library territory per spec.md §1's Non-goals:
// the Workflow graph itself is built and shipped by callers, not by Clerk).
type WorkFactory func(workID string) workflow.Work

// Agent drives the Request lifecycle.
type Agent struct {
	store       store.Store
	workFactory WorkFactory
	workerID    string
	bulkSize    int
	logger      *logging.Logger
}

// New constructs a Clerk Agent. workerID identifies this process/thread for
// row-claiming; bulkSize bounds how many Requests one cycle claims.
func New(s store.Store, workFactory WorkFactory, workerID string, bulkSize int) *Agent {
	if bulkSize <= 0 {
		bulkSize = 100
	}
	return &Agent{store: s, workFactory: workFactory, workerID: workerID, bulkSize: bulkSize, logger: logging.NewComponentLogger("clerk")}
}

// requestMetadata is the static half of a Request: the Workflow Blueprint.
type requestMetadata struct {
	Workflow workflow.Blueprint `json:"workflow"`
}

// processingMetadata is the mutable half: the Workflow's running data plus
// the Cancel/Suspend/Resume operations audit trail (§4.E).
type processingMetadata struct {
	WorkflowData json.RawMessage  `json:"workflow_data"`
	Operations   []operationEntry `json:"operations,omitempty"`
}

type operationEntry struct {
	Op string    `json:"op"`
	At time.Time `json:"at"`
}

// transformStaticMetadata is transform_metadata.work for a freshly
// materialized Transform: just enough for Transformer to rebind the same
// Work implementation (§4.F reads this back via its own WorkFactory).
func transformStaticMetadata(workID string) ([]byte, error) {
	return json.Marshal(struct {
		WorkID string `json:"work_id"`
	}{WorkID: workID})
}

func (a *Agent) loadWorkflow(req *model.Request) (*workflow.Workflow, *processingMetadata, error) {
	var rm requestMetadata
	if len(req.RequestMetadata) > 0 {
		if err := json.Unmarshal(req.RequestMetadata, &rm); err != nil {
			return nil, nil, fmt.Errorf("clerk: decode request_metadata: %w", err)
		}
	}
	wf := rm.Workflow.Rebuild(func(id string) workflow.Work { return a.workFactory(id) })

	var pm processingMetadata
	if len(req.ProcessingMetadata) > 0 {
		if err := json.Unmarshal(req.ProcessingMetadata, &pm); err != nil {
			return nil, nil, fmt.Errorf("clerk: decode processing_metadata: %w", err)
		}
		if err := wf.LoadRunningData(pm.WorkflowData); err != nil {
			return nil, nil, err
		}
	}
	return wf, &pm, nil
}

func (a *Agent) saveWorkflow(req *model.Request, wf *workflow.Workflow, pm *processingMetadata) error {
	runData, err := wf.GetRunningData()
	if err != nil {
		return err
	}
	pm.WorkflowData = runData
	blob, err := json.Marshal(pm)
	if err != nil {
		return err
	}
	req.ProcessingMetadata = blob

	if len(req.RequestMetadata) == 0 {
		bp := workflow.NewBlueprint(wf)
		bpBlob, err := json.Marshal(requestMetadata{Workflow: bp})
		if err != nil {
			return err
		}
		req.RequestMetadata = bpBlob
	}
	return nil
}

// PullNewRequests implements §4.E's "Pull New/Extend Requests": expand the
// Workflow's initial works into Transform rows, then move the Request to
// Transforming.
func (a *Agent) PullNewRequests(ctx context.Context) (int, error) {
	requests, err := a.store.Requests().ClaimNew(ctx, a.workerID, a.bulkSize)
	if err != nil {
		return 0, fmt.Errorf("clerk: claim new requests: %w", err)
	}

	processed := 0
	for _, req := range requests {
		if err := a.processNewRequest(ctx, req); err != nil {
			a.logger.Error("clerk: request %d failed in pull-new: %v", req.RequestID, err)
			req.Status = model.RequestFailed
			req.Errors = err.Error()
			_ = a.store.Requests().Update(ctx, req)
			continue
		}
		processed++
	}
	return processed, nil
}

func (a *Agent) processNewRequest(ctx context.Context, req *model.Request) error {
	wf, pm, err := a.loadWorkflow(req)
	if err != nil {
		return err
	}

	for _, w := range wf.GetNewWorks() {
		meta, err := transformStaticMetadata(w.ID())
		if err != nil {
			return err
		}
		t := &model.Transform{
			RequestID:         req.RequestID,
			Status:            model.TransformNew,
			TransformMetadata: meta,
		}
		if err := a.store.Transforms().Create(ctx, t); err != nil {
			return fmt.Errorf("clerk: create transform for work %s: %w", w.ID(), err)
		}
		w.State().TransformID = t.TransformID
	}

	req.Status = model.RequestTransforming
	if err := a.saveWorkflow(req, wf, pm); err != nil {
		return err
	}
	return a.store.Requests().Update(ctx, req)
}

// PullTransformingRequests implements §4.E's "Pull Transforming Requests":
// re-hydrate the Workflow, sync each current Work's data from its Transform,
// materialize any newly-unlocked Works, and map aggregate state back onto
// the Request.
func (a *Agent) PullTransformingRequests(ctx context.Context) (int, error) {
	requests, err := a.store.Requests().ClaimForUpdate(ctx, a.workerID, store.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("clerk: claim transforming requests: %w", err)
	}

	processed := 0
	for _, req := range requests {
		if req.Status != model.RequestTransforming {
			_ = a.store.Requests().Release(ctx, req.RequestID)
			continue
		}
		if err := a.processTransformingRequest(ctx, req); err != nil {
			a.logger.Error("clerk: request %d failed in pull-transforming: %v", req.RequestID, err)
			req.Status = model.RequestFailed
			req.Errors = err.Error()
			_ = a.store.Requests().Update(ctx, req)
			continue
		}
		processed++
	}
	return processed, nil
}

func (a *Agent) processTransformingRequest(ctx context.Context, req *model.Request) error {
	wf, pm, err := a.loadWorkflow(req)
	if err != nil {
		return err
	}

	for _, w := range wf.GetCurrentWorks() {
		state := w.State()
		if state.TransformID == 0 {
			continue
		}
		t, err := a.store.Transforms().Get(ctx, state.TransformID)
		if err != nil {
			return fmt.Errorf("clerk: get transform %d: %w", state.TransformID, err)
		}
		if err := wf.SyncWorkData(w.ID(), workflow.WorkStatus(t.Status), workflow.WorkStatus(t.Substatus), nil); err != nil {
			return err
		}
	}

	for _, w := range wf.GetNewWorks() {
		meta, err := transformStaticMetadata(w.ID())
		if err != nil {
			return err
		}
		t := &model.Transform{RequestID: req.RequestID, Status: model.TransformNew, TransformMetadata: meta}
		if err := a.store.Transforms().Create(ctx, t); err != nil {
			return fmt.Errorf("clerk: create transform for work %s: %w", w.ID(), err)
		}
		w.State().TransformID = t.TransformID
	}

	// Clerk must never overwrite a terminal status with a non-terminal one.
	if !req.Status.IsTerminal() {
		req.Status = aggregateStatus(wf)
	}
	if err := a.saveWorkflow(req, wf, pm); err != nil {
		return err
	}
	return a.store.Requests().Update(ctx, req)
}

func aggregateStatus(wf *workflow.Workflow) model.RequestStatus {
	switch {
	case wf.IsCancelled():
		return model.RequestCancelled
	case wf.IsFailed() && wf.IsTerminated():
		return model.RequestFailed
	case wf.IsSubfinished():
		return model.RequestSubFinished
	case wf.IsFinished():
		return model.RequestFinished
	default:
		return model.RequestTransforming
	}
}

// PullOperationRequests implements §4.E's "Pull To{Cancel,Suspend,Resume}
// Requests": record the operation, mark every non-terminal Transform with
// the matching substatus, and move the Request into its *-ing state.
func (a *Agent) PullOperationRequests(ctx context.Context, requestID int64, op model.RequestSubstatus) error {
	req, err := a.store.Requests().Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("clerk: get request %d: %w", requestID, err)
	}

	wf, pm, err := a.loadWorkflow(req)
	if err != nil {
		return err
	}
	pm.Operations = append(pm.Operations, operationEntry{Op: string(op), At: time.Now()})

	switch op {
	case model.SubstatusToCancel:
		wf.CancelWorks()
		req.Status = model.RequestCancelling
	case model.SubstatusToSuspend:
		wf.SuspendWorks()
		req.Status = model.RequestSuspending
	case model.SubstatusToResume:
		wf.ResumeWorks()
		req.Status = model.RequestResuming
	default:
		return fmt.Errorf("clerk: unsupported operation %q", op)
	}

	transforms, err := a.store.Transforms().ListByRequest(ctx, req.RequestID)
	if err != nil {
		return fmt.Errorf("clerk: list transforms for request %d: %w", req.RequestID, err)
	}
	for _, t := range transforms {
		if t.Status.IsTerminal() {
			continue
		}
		t.Substatus = op
		if err := a.store.Transforms().Update(ctx, t); err != nil {
			return fmt.Errorf("clerk: update transform %d substatus: %w", t.TransformID, err)
		}
	}

	if err := a.saveWorkflow(req, wf, pm); err != nil {
		return err
	}
	return a.store.Requests().Update(ctx, req)
}

// commandSubstatus maps an inbound Command (§4.H) onto the RequestSubstatus
// PullOperationRequests expects. Only the request-scoped cancel/suspend/
// resume operations route through Clerk; expire/finish/force-finish are
// Carrier-side (§4.G) and are left for that agent's own command handling.
func commandSubstatus(cmdType model.CommandType) (model.RequestSubstatus, bool) {
	switch cmdType {
	case model.CommandToCancel:
		return model.SubstatusToCancel, true
	case model.CommandToSuspend:
		return model.SubstatusToSuspend, true
	case model.CommandToResume:
		return model.SubstatusToResume, true
	default:
		return "", false
	}
}

// PullCommands claims pending request-scoped Commands and drives each
// through PullOperationRequests, matching how the original implementation's
// commands table feeds Clerk's tocancel/tosuspend/toresume handling.
func (a *Agent) PullCommands(ctx context.Context) (int, error) {
	commands, err := a.store.Commands().ClaimNew(ctx, a.workerID, a.bulkSize)
	if err != nil {
		return 0, fmt.Errorf("clerk: claim commands: %w", err)
	}

	processed := 0
	for _, cmd := range commands {
		if cmd.RequestID == nil {
			continue
		}
		op, ok := commandSubstatus(cmd.CmdType)
		if !ok {
			continue
		}
		if err := a.PullOperationRequests(ctx, *cmd.RequestID, op); err != nil {
			a.logger.Error("clerk: command %d on request %d failed: %v", cmd.CmdID, *cmd.RequestID, err)
			continue
		}
		if err := a.store.Commands().MarkProcessed(ctx, cmd.CmdID); err != nil {
			a.logger.Warn("clerk: mark command %d processed: %v", cmd.CmdID, err)
		}
		processed++
	}
	return processed, nil
}
