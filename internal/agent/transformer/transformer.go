package transformer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iddsorg/idds/internal/logging"
	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// Agent drives the Transform lifecycle.
type Agent struct {
	store       store.Store
	workFactory WorkFactory
	metadata    MetadataProvider
	workerID    string
	bulkSize    int
	logger      *logging.Logger
}

// New constructs a Transformer Agent. metadata may be nil; Collections whose
// CollType isn't PseudoDataset are then left Open until a provider is wired.
func New(s store.Store, workFactory WorkFactory, metadata MetadataProvider, workerID string, bulkSize int) *Agent {
	if bulkSize <= 0 {
		bulkSize = 100
	}
	return &Agent{store: s, workFactory: workFactory, metadata: metadata, workerID: workerID, bulkSize: bulkSize, logger: logging.NewComponentLogger("transformer")}
}

// transformStatic is transform_metadata.work: the Work ID bound at creation
// time by Clerk, and never changed afterward.
type transformStatic struct {
	WorkID string `json:"work_id"`
}

// transformRunning is running_metadata.work_data: Transformer's own mutable
// bookkeeping, namely the monotonic map_id counter (§4.F's "never reused
// after delete" rule rules out recomputing it from existing rows alone once
// deletes are possible).
type transformRunning struct {
	NextMapID int64 `json:"next_map_id"`
}

func (a *Agent) loadWork(t *model.Transform) (Work, error) {
	var st transformStatic
	if len(t.TransformMetadata) > 0 {
		if err := json.Unmarshal(t.TransformMetadata, &st); err != nil {
			return nil, fmt.Errorf("transformer: decode transform_metadata: %w", err)
		}
	}
	if st.WorkID == "" {
		return nil, fmt.Errorf("transformer: transform %d has no bound work_id", t.TransformID)
	}
	return a.workFactory(st.WorkID), nil
}

func (a *Agent) loadRunning(t *model.Transform) (transformRunning, error) {
	var rm transformRunning
	if len(t.RunningMetadata) > 0 {
		if err := json.Unmarshal(t.RunningMetadata, &rm); err != nil {
			return rm, fmt.Errorf("transformer: decode running_metadata: %w", err)
		}
	}
	return rm, nil
}

func (a *Agent) saveRunning(t *model.Transform, rm transformRunning) error {
	blob, err := json.Marshal(rm)
	if err != nil {
		return err
	}
	t.RunningMetadata = blob
	return nil
}

// PullNewTransforms implements §4.F's initial materialization: declare the
// Work's Collections, then move the Transform to Ready for the next cycle
// to start producing maps.
func (a *Agent) PullNewTransforms(ctx context.Context) (int, error) {
	transforms, err := a.store.Transforms().ClaimNew(ctx, a.workerID, a.bulkSize)
	if err != nil {
		return 0, fmt.Errorf("transformer: claim new transforms: %w", err)
	}

	processed := 0
	for _, t := range transforms {
		if err := a.materializeCollections(ctx, t); err != nil {
			a.logger.Error("transformer: transform %d failed to materialize: %v", t.TransformID, err)
			t.Status = model.TransformFailed
			_ = a.store.Transforms().Update(ctx, t)
			continue
		}
		t.Status = model.TransformReady
		if err := a.store.Transforms().Update(ctx, t); err != nil {
			return processed, fmt.Errorf("transformer: update transform %d: %w", t.TransformID, err)
		}
		processed++
	}
	return processed, nil
}

func (a *Agent) materializeCollections(ctx context.Context, t *model.Transform) error {
	work, err := a.loadWork(t)
	if err != nil {
		return err
	}
	for _, spec := range work.Collections() {
		status := model.CollOpen
		if spec.CollType.IsPseudo() {
			status = model.CollClosed
		}
		c := &model.Collection{
			TransformID:  t.TransformID,
			RequestID:    t.RequestID,
			RelationType: spec.RelationType,
			CollType:     spec.CollType,
			Status:       status,
			Scope:        spec.Scope,
			Name:         spec.Name,
		}
		if err := a.store.Collections().Create(ctx, c); err != nil {
			return fmt.Errorf("transformer: create collection %s:%s: %w", spec.Scope, spec.Name, err)
		}
	}
	return nil
}

// PullActiveTransforms implements §4.F's steady-state cycle: poll collection
// metadata, generate new maps, create a Processing if the Work asks for
// one, and derive the aggregate Transform status.
func (a *Agent) PullActiveTransforms(ctx context.Context) (int, error) {
	transforms, err := a.store.Transforms().ClaimForUpdate(ctx, a.workerID, store.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("transformer: claim active transforms: %w", err)
	}

	processed := 0
	for _, t := range transforms {
		if t.Status == model.TransformNew || t.Status.IsTerminal() {
			_ = a.store.Transforms().Release(ctx, t.TransformID)
			continue
		}
		if err := a.processTransform(ctx, t); err != nil {
			a.logger.Error("transformer: transform %d failed: %v", t.TransformID, err)
			t.Status = model.TransformFailed
			_ = a.store.Transforms().Update(ctx, t)
			continue
		}
		processed++
	}
	return processed, nil
}

func (a *Agent) processTransform(ctx context.Context, t *model.Transform) error {
	work, err := a.loadWork(t)
	if err != nil {
		return err
	}
	rm, err := a.loadRunning(t)
	if err != nil {
		return err
	}

	collections, err := a.store.Collections().ListByTransform(ctx, t.TransformID)
	if err != nil {
		return fmt.Errorf("transformer: list collections: %w", err)
	}
	if err := a.pollInputCollections(ctx, collections); err != nil {
		return err
	}

	allMaps, alreadyMapped, err := a.loadMaps(ctx, collections)
	if err != nil {
		return err
	}

	newMaps, err := work.GetNewInputOutputMaps(ctx, alreadyMapped)
	if err != nil {
		return fmt.Errorf("transformer: get new input/output maps: %w", err)
	}

	for _, m := range newMaps {
		if work.UseDependencyToReleaseJobs() && !dependenciesResolved(ctx, a.store, m.InputsDependency) {
			// Not persisted, so its inputs stay out of alreadyMapped and
			// the Work offers this map again next cycle (§4.F).
			continue
		}
		if rm.NextMapID < 1 {
			rm.NextMapID = 1
		}
		mapID := rm.NextMapID
		rm.NextMapID++
		contents, err := contentsForMap(t, collections, mapID, m)
		if err != nil {
			return err
		}
		if err := a.store.Contents().BulkCreate(ctx, contents); err != nil {
			return fmt.Errorf("transformer: persist map %d: %w", mapID, err)
		}
		allMaps = append(allMaps, m)
	}

	if err := a.ensureProcessing(ctx, t, work, allMaps); err != nil {
		return err
	}

	processingsTerminated, err := a.processingsTerminated(ctx, t.TransformID)
	if err != nil {
		return err
	}
	allOutputsFlushed, err := allOutputsFlushed(ctx, a.store, collections)
	if err != nil {
		return err
	}
	t.Status = model.TransformStatus(work.SyncWorkStatus(processingsTerminated, allOutputsFlushed))

	if err := a.saveRunning(t, rm); err != nil {
		return err
	}
	return a.store.Transforms().Update(ctx, t)
}

func (a *Agent) pollInputCollections(ctx context.Context, collections []*model.Collection) error {
	if a.metadata == nil {
		return nil
	}
	for _, c := range collections {
		if c.RelationType != model.RelationInput || c.CollType.IsPseudo() || c.Status == model.CollClosed {
			continue
		}
		meta, err := a.metadata.GetMetadata(ctx, c.Scope, c.Name)
		if err != nil {
			return fmt.Errorf("transformer: get metadata for %s:%s: %w", c.Scope, c.Name, err)
		}
		c.ExternalBytes = meta.Bytes
		c.ExternalTotalFiles = meta.Length
		c.ExternalIsOpen = meta.IsOpen
		c.TotalFiles = meta.Length
		if !meta.IsOpen {
			c.Status = model.CollClosed
		}
		if err := a.store.Collections().Update(ctx, c); err != nil {
			return fmt.Errorf("transformer: update collection %d: %w", c.CollID, err)
		}
	}
	return nil
}

func (a *Agent) loadMaps(ctx context.Context, collections []*model.Collection) ([]InputOutputMap, map[string]bool, error) {
	byMapID := map[int64]*InputOutputMap{}
	alreadyMapped := map[string]bool{}

	for _, c := range collections {
		contents, err := a.store.Contents().ListByCollection(ctx, c.CollID)
		if err != nil {
			return nil, nil, fmt.Errorf("transformer: list contents for collection %d: %w", c.CollID, err)
		}
		for _, ct := range contents {
			m := byMapID[ct.MapID]
			if m == nil {
				m = &InputOutputMap{}
				byMapID[ct.MapID] = m
			}
			spec := ContentSpec{Scope: ct.Scope, Name: ct.Name, MinID: ct.MinID, MaxID: ct.MaxID, DependsOnContentID: ct.ContentDepID}
			switch ct.ContentRelationType {
			case model.ContentRelationInput:
				m.Inputs = append(m.Inputs, spec)
				alreadyMapped[ct.Scope+":"+ct.Name] = true
			case model.ContentRelationOutput:
				m.Outputs = append(m.Outputs, spec)
			case model.ContentRelationLog:
				m.Logs = append(m.Logs, spec)
			case model.ContentRelationInputDependency:
				m.InputsDependency = append(m.InputsDependency, spec)
			}
		}
	}

	out := make([]InputOutputMap, 0, len(byMapID))
	for _, m := range byMapID {
		out = append(out, *m)
	}
	return out, alreadyMapped, nil
}

func dependenciesResolved(ctx context.Context, s store.Store, deps []ContentSpec) bool {
	for _, dep := range deps {
		if dep.DependsOnContentID == nil {
			continue
		}
		upstream, err := s.Contents().Get(ctx, *dep.DependsOnContentID)
		if err != nil || upstream.Status != model.ContentAvailable {
			return false
		}
	}
	return true
}

func primaryCollection(collections []*model.Collection, relation model.CollectionRelationType) (*model.Collection, error) {
	for _, c := range collections {
		if c.RelationType == relation {
			return c, nil
		}
	}
	return nil, fmt.Errorf("transformer: no %s collection declared", relation)
}

func contentsForMap(t *model.Transform, collections []*model.Collection, mapID int64, m InputOutputMap) ([]*model.Content, error) {
	var out []*model.Content

	role := func(relType model.ContentRelationType, specs []ContentSpec, relation model.CollectionRelationType) error {
		if len(specs) == 0 {
			return nil
		}
		coll, err := primaryCollection(collections, relation)
		if err != nil {
			return err
		}
		for _, spec := range specs {
			out = append(out, &model.Content{
				TransformID:         t.TransformID,
				CollID:              coll.CollID,
				RequestID:           t.RequestID,
				MapID:               mapID,
				ContentDepID:        spec.DependsOnContentID,
				Scope:               spec.Scope,
				Name:                spec.Name,
				MinID:               spec.MinID,
				MaxID:               spec.MaxID,
				ContentRelationType: relType,
				Status:              model.ContentNew,
			})
		}
		return nil
	}

	if err := role(model.ContentRelationInput, m.Inputs, model.RelationInput); err != nil {
		return nil, err
	}
	if err := role(model.ContentRelationOutput, m.Outputs, model.RelationOutput); err != nil {
		return nil, err
	}
	if err := role(model.ContentRelationLog, m.Logs, model.RelationLog); err != nil {
		return nil, err
	}
	if err := role(model.ContentRelationInputDependency, m.InputsDependency, model.RelationInput); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Agent) ensureProcessing(ctx context.Context, t *model.Transform, work Work, maps []InputOutputMap) error {
	active, err := a.store.Processings().ActiveByTransform(ctx, t.TransformID)
	if err != nil {
		return fmt.Errorf("transformer: active processing for transform %d: %w", t.TransformID, err)
	}
	if active != nil {
		return nil
	}

	taskParam, ok := work.GetProcessing(maps, false)
	if !ok {
		return nil
	}
	blob, err := json.Marshal(map[string]any{"task_param": taskParam})
	if err != nil {
		return err
	}
	p := &model.Processing{
		TransformID:        t.TransformID,
		RequestID:          t.RequestID,
		Status:             model.ProcessingSubmitting,
		ProcessingMetadata: blob,
	}
	if err := a.store.Processings().Create(ctx, p); err != nil {
		return fmt.Errorf("transformer: create processing for transform %d: %w", t.TransformID, err)
	}
	return nil
}

func (a *Agent) processingsTerminated(ctx context.Context, transformID int64) (bool, error) {
	processings, err := a.store.Processings().ListByTransform(ctx, transformID)
	if err != nil {
		return false, fmt.Errorf("transformer: list processings for transform %d: %w", transformID, err)
	}
	if len(processings) == 0 {
		return false, nil
	}
	for _, p := range processings {
		if !p.Status.IsTerminal() {
			return false, nil
		}
	}
	return true, nil
}

func allOutputsFlushed(ctx context.Context, s store.Store, collections []*model.Collection) (bool, error) {
	for _, c := range collections {
		if c.RelationType != model.RelationOutput {
			continue
		}
		contents, err := s.Contents().ListByCollection(ctx, c.CollID)
		if err != nil {
			return false, fmt.Errorf("transformer: list contents for output collection %d: %w", c.CollID, err)
		}
		for _, ct := range contents {
			if !ct.Status.IsTerminal() {
				return false, nil
			}
		}
	}
	return true, nil
}
