package transformer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
	"github.com/iddsorg/idds/internal/store/memory"
)

type fakeMetadata struct {
	length int
	isOpen bool
}

func (f fakeMetadata) GetMetadata(ctx context.Context, scope, name string) (CollectionMetadata, error) {
	return CollectionMetadata{Length: f.length, IsOpen: f.isOpen, Bytes: int64(f.length) * 1024}, nil
}

func newTestWork(workID string) Work {
	return &FileListWork{
		WorkID:       workID,
		InputScope:   "tests",
		InputName:    "ds.001",
		OutputScope:  "tests",
		OutputName:   "ds.001.out",
		OutputSuffix: ".out",
		Files:        []string{"file1", "file2", "file3", "file4", "file5"},
	}
}

func setupTransform(t *testing.T, s store.Store, workID string) *model.Transform {
	t.Helper()
	meta, err := json.Marshal(struct {
		WorkID string `json:"work_id"`
	}{WorkID: workID})
	require.NoError(t, err)
	tr := &model.Transform{Status: model.TransformNew, TransformMetadata: meta}
	require.NoError(t, s.Transforms().Create(context.Background(), tr))
	return tr
}

func TestPullNewTransformsMaterializesCollections(t *testing.T) {
	s := memory.New()
	tr := setupTransform(t, s, "w1")

	a := New(s, newTestWork, nil, "worker-1", 10)
	n, err := a.PullNewTransforms(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.Transforms().Get(context.Background(), tr.TransformID)
	require.NoError(t, err)
	require.Equal(t, model.TransformReady, got.Status)

	cols, err := s.Collections().ListByTransform(context.Background(), tr.TransformID)
	require.NoError(t, err)
	require.Len(t, cols, 2)
}

func TestPullActiveTransformsCreatesMapsAndProcessing(t *testing.T) {
	s := memory.New()
	tr := setupTransform(t, s, "w1")

	a := New(s, newTestWork, fakeMetadata{length: 5, isOpen: false}, "worker-1", 10)
	_, err := a.PullNewTransforms(context.Background())
	require.NoError(t, err)

	n, err := a.PullActiveTransforms(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	cols, err := s.Collections().ListByTransform(context.Background(), tr.TransformID)
	require.NoError(t, err)
	var inputColl *model.Collection
	for _, c := range cols {
		if c.RelationType == model.RelationInput {
			inputColl = c
		}
	}
	require.NotNil(t, inputColl)
	require.Equal(t, model.CollClosed, inputColl.Status)

	contents, err := s.Contents().ListByCollection(context.Background(), inputColl.CollID)
	require.NoError(t, err)
	require.Len(t, contents, 5)

	processings, err := s.Processings().ListByTransform(context.Background(), tr.TransformID)
	require.NoError(t, err)
	require.Len(t, processings, 1)
}

func TestPullActiveTransformsDoesNotRemapExistingFiles(t *testing.T) {
	s := memory.New()
	tr := setupTransform(t, s, "w1")

	a := New(s, newTestWork, fakeMetadata{length: 5, isOpen: false}, "worker-1", 10)
	_, err := a.PullNewTransforms(context.Background())
	require.NoError(t, err)
	_, err = a.PullActiveTransforms(context.Background())
	require.NoError(t, err)

	n, err := a.PullActiveTransforms(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	cols, _ := s.Collections().ListByTransform(context.Background(), tr.TransformID)
	var inputColl *model.Collection
	for _, c := range cols {
		if c.RelationType == model.RelationInput {
			inputColl = c
		}
	}
	contents, err := s.Contents().ListByCollection(context.Background(), inputColl.CollID)
	require.NoError(t, err)
	require.Len(t, contents, 5, "re-running the cycle must not duplicate already-mapped files")
}
