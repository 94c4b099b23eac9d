package carrier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/depresolver"
	"github.com/iddsorg/idds/internal/driver"
	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
	"github.com/iddsorg/idds/internal/store/memory"
)

type fakeDriver struct {
	submittedWorkloadID string
	taskStatus          string
	pandaIDs            []int64
	jobs                map[int64]driver.JobInfo
	killed              []string
	finished            []string
}

func (f *fakeDriver) SubmitTask(ctx context.Context, param driver.TaskParam) (string, error) {
	return f.submittedWorkloadID, nil
}
func (f *fakeDriver) GetTaskStatus(ctx context.Context, workloadID string) (string, error) {
	return f.taskStatus, nil
}
func (f *fakeDriver) GetTaskDetails(ctx context.Context, workloadID string) (driver.TaskDetails, error) {
	return driver.TaskDetails{Status: f.taskStatus, PandaIDs: f.pandaIDs}, nil
}
func (f *fakeDriver) GetJobStatus(ctx context.Context, ids []int64) ([]driver.JobInfo, error) {
	var out []driver.JobInfo
	for _, id := range ids {
		if j, ok := f.jobs[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}
func (f *fakeDriver) KillTask(ctx context.Context, workloadID string) error {
	f.killed = append(f.killed, workloadID)
	return nil
}
func (f *fakeDriver) FinishTask(ctx context.Context, workloadID string, soft bool) error {
	f.finished = append(f.finished, workloadID)
	return nil
}
func (f *fakeDriver) RetryTask(ctx context.Context, workloadID string, newParams driver.TaskParam) error {
	return nil
}
func (f *fakeDriver) GetJobIDsInTimeRange(ctx context.Context, start int64, taskType string) (map[string]driver.TaskDetails, error) {
	return nil, nil
}

var _ driver.Driver = (*fakeDriver)(nil)

func setupProcessing(t *testing.T, s store.Store) (*model.Processing, *model.Content) {
	t.Helper()
	ctx := context.Background()

	coll := &model.Collection{RelationType: model.RelationInput, CollType: model.CollTypeDataset, Scope: "tests", Name: "ds.001"}
	require.NoError(t, s.Collections().Create(ctx, coll))

	content := &model.Content{CollID: coll.CollID, Scope: "tests", Name: "file1", ContentRelationType: model.ContentRelationInput, Status: model.ContentNew}
	require.NoError(t, s.Contents().Create(ctx, content))

	p := &model.Processing{TransformID: coll.TransformID, Status: model.ProcessingSubmitting}
	require.NoError(t, s.Processings().Create(ctx, p))
	return p, content
}

func TestSubmitBindsWorkloadID(t *testing.T) {
	s := memory.New()
	p, _ := setupProcessing(t, s)

	drv := &fakeDriver{submittedWorkloadID: "task-1"}
	a := New(s, drv, depresolver.New(s.Contents()), "worker-1", 10)

	require.NoError(t, a.submit(context.Background(), p))
	require.Equal(t, "task-1", p.WorkloadID)
	require.Equal(t, model.ProcessingSubmitted, p.Status)
}

func TestPullProcessingsReconcilesJobStatusIntoContent(t *testing.T) {
	s := memory.New()
	p, content := setupProcessing(t, s)
	p.WorkloadID = "task-1"
	p.Status = model.ProcessingSubmitted
	require.NoError(t, s.Processings().Update(context.Background(), p))

	drv := &fakeDriver{
		taskStatus: "running",
		pandaIDs:   []int64{100},
		jobs: map[int64]driver.JobInfo{
			100: {PandaID: 100, JobStatus: "done", Files: []driver.JobFile{{LFN: "file1"}}},
		},
	}
	a := New(s, drv, depresolver.New(s.Contents()), "worker-1", 10)

	n, err := a.PullProcessings(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.Contents().Get(context.Background(), content.ContentID)
	require.NoError(t, err)
	require.Equal(t, model.ContentAvailable, got.Status)
	require.Equal(t, "100", got.ExternalContentID)
}

func TestTerminalStatusHeldRunningWhileContentsStillUpdating(t *testing.T) {
	s := memory.New()
	p, content := setupProcessing(t, s)
	p.WorkloadID = "task-1"
	p.Status = model.ProcessingRunning
	require.NoError(t, s.Processings().Update(context.Background(), p))

	drv := &fakeDriver{
		taskStatus: "done", // maps to terminal "finished"
		pandaIDs:   []int64{100},
		jobs: map[int64]driver.JobInfo{
			100: {PandaID: 100, JobStatus: "done", Files: []driver.JobFile{{LFN: "file1"}}},
		},
	}
	a := New(s, drv, depresolver.New(s.Contents()), "worker-1", 10)

	_, err := a.PullProcessings(context.Background())
	require.NoError(t, err)

	got, err := s.Processings().Get(context.Background(), p.ProcessingID)
	require.NoError(t, err)
	require.Equal(t, model.ProcessingRunning, got.Status, "a terminal external status with content updates this cycle must not be committed yet")

	updatedContent, err := s.Contents().Get(context.Background(), content.ContentID)
	require.NoError(t, err)
	require.Equal(t, model.ContentAvailable, updatedContent.Status, "the content update itself must still have been written")
}

func TestTerminalStatusCommitsOncePollingRetriesExhausted(t *testing.T) {
	s := memory.New()
	p, _ := setupProcessing(t, s)
	p.WorkloadID = "task-1"
	p.Status = model.ProcessingRunning
	p.PollingRetries = 3
	require.NoError(t, s.Processings().Update(context.Background(), p))

	drv := &fakeDriver{taskStatus: "done"} // no pandaIDs: nothing left to flush
	a := New(s, drv, depresolver.New(s.Contents()), "worker-1", 10)

	_, err := a.PullProcessings(context.Background())
	require.NoError(t, err)

	got, err := s.Processings().Get(context.Background(), p.ProcessingID)
	require.NoError(t, err)
	require.Equal(t, model.ProcessingFinished, got.Status, "with no pending content updates and retries exhausted, the terminal status must commit")
}

func TestHonorCancelOperationKillsTaskAndTerminates(t *testing.T) {
	s := memory.New()
	p, _ := setupProcessing(t, s)
	p.WorkloadID = "task-1"
	p.Status = model.ProcessingRunning
	p.Substatus = model.SubstatusToCancel
	require.NoError(t, s.Processings().Update(context.Background(), p))

	drv := &fakeDriver{taskStatus: "running"}
	a := New(s, drv, depresolver.New(s.Contents()), "worker-1", 10)

	n, err := a.PullProcessings(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, drv.killed, "task-1")

	got, err := s.Processings().Get(context.Background(), p.ProcessingID)
	require.NoError(t, err)
	require.Equal(t, model.ProcessingCancelled, got.Status)
	require.Equal(t, model.SubstatusNone, got.Substatus)
}
