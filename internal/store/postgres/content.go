package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// ContentStore implements store.ContentStore.
type ContentStore struct {
	pool *pgxpool.Pool
}

var _ store.ContentStore = (*ContentStore)(nil)

func (s *ContentStore) Create(ctx context.Context, c *model.Content) error {
	return s.pool.QueryRow(ctx, contentInsertSQL,
		c.TransformID, c.CollID, c.RequestID, c.MapID, c.ContentDepID,
		c.Scope, c.Name, c.MinID, c.MaxID, c.ContentType, c.ContentRelationType,
		c.Status, c.Substatus, c.ExternalCollID, c.ExternalContentID, c.ContentMetadata,
	).Scan(&c.ContentID, &c.CreatedAt, &c.UpdatedAt)
}

const contentInsertSQL = `INSERT INTO contents (transform_id, coll_id, request_id, map_id, content_dep_id,
		scope, name, min_id, max_id, content_type, content_relation_type,
		status, substatus, external_coll_id, external_content_id, content_metadata)
	 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	 RETURNING content_id, created_at, updated_at`

// BulkCreate inserts a batch of Content rows inside one transaction,
// rolling back entirely on any single insert failure, mirroring
// PostgresStore.EnqueueDispatches' batched-insert-in-a-tx pattern.
func (s *ContentStore) BulkCreate(ctx context.Context, contents []*model.Content) error {
	if len(contents) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bulk content insert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, c := range contents {
		if err := tx.QueryRow(ctx, contentInsertSQL,
			c.TransformID, c.CollID, c.RequestID, c.MapID, c.ContentDepID,
			c.Scope, c.Name, c.MinID, c.MaxID, c.ContentType, c.ContentRelationType,
			c.Status, c.Substatus, c.ExternalCollID, c.ExternalContentID, c.ContentMetadata,
		).Scan(&c.ContentID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return fmt.Errorf("insert content %s: %w", c.Name, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *ContentStore) Get(ctx context.Context, contentID int64) (*model.Content, error) {
	row := s.pool.QueryRow(ctx, contentSelectColumns+` WHERE content_id = $1`, contentID)
	return scanContent(row)
}

func (s *ContentStore) ListByCollection(ctx context.Context, collID int64) ([]*model.Content, error) {
	rows, err := s.pool.Query(ctx, contentSelectColumns+` WHERE coll_id = $1 ORDER BY map_id ASC`, collID)
	if err != nil {
		return nil, fmt.Errorf("list contents by collection: %w", err)
	}
	defer rows.Close()
	return scanContents(rows)
}

func (s *ContentStore) ListDependents(ctx context.Context, depID int64) ([]*model.Content, error) {
	rows, err := s.pool.Query(ctx, contentSelectColumns+` WHERE content_dep_id = $1`, depID)
	if err != nil {
		return nil, fmt.Errorf("list content dependents: %w", err)
	}
	defer rows.Close()
	return scanContents(rows)
}

// UpdateExternalID records the current external job identity and
// content_metadata for a Content without touching its status/substatus.
func (s *ContentStore) UpdateExternalID(ctx context.Context, contentID int64, externalContentID string, metadata []byte) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE contents SET external_content_id=$1, content_metadata=$2, updated_at=now() WHERE content_id=$3`,
		externalContentID, metadata, contentID,
	); err != nil {
		return fmt.Errorf("update content external id: %w", err)
	}
	return nil
}

// UpdateStatusAndPropagate updates contentID's status and, within the same
// transaction, walks the content_dep_id graph outward from contentID
// propagating the new status to every transitive dependent — provided the
// new status is Propagatable (§9 design note: this replaces the original's
// separate "update dependency" background pass with an application-level
// transaction, so a crash between the triggering update and the propagation
// can never happen). A visited set keyed on content_id makes the walk safe
// against cycles, refusing to loop back onto a row it has already touched.
func (s *ContentStore) UpdateStatusAndPropagate(ctx context.Context, contentID int64, status model.ContentStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin content status update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE contents SET status=$1, updated_at=now() WHERE content_id=$2`, status, contentID); err != nil {
		return fmt.Errorf("update content status: %w", err)
	}

	if status.Propagatable() {
		visited := map[int64]bool{contentID: true}
		queue := []int64{contentID}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]

			rows, err := tx.Query(ctx, `SELECT content_id FROM contents WHERE content_dep_id = $1 FOR UPDATE`, id)
			if err != nil {
				return fmt.Errorf("find content dependents of %d: %w", id, err)
			}
			var dependents []int64
			for rows.Next() {
				var depID int64
				if err := rows.Scan(&depID); err != nil {
					rows.Close()
					return fmt.Errorf("scan dependent id: %w", err)
				}
				dependents = append(dependents, depID)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}

			for _, depID := range dependents {
				if visited[depID] {
					continue
				}
				visited[depID] = true
				if _, err := tx.Exec(ctx, `UPDATE contents SET substatus=$1, updated_at=now() WHERE content_id=$2`, status, depID); err != nil {
					return fmt.Errorf("propagate status to content %d: %w", depID, err)
				}
				queue = append(queue, depID)
			}
		}
	}

	return tx.Commit(ctx)
}

const contentSelectColumns = `SELECT content_id, transform_id, coll_id, request_id, map_id, content_dep_id,
	scope, name, min_id, max_id, content_type, content_relation_type, status, substatus,
	bytes, md5, adler32, path, external_coll_id, external_content_id, content_metadata,
	created_at, updated_at, expired_at
	FROM contents`

func scanContent(row rowScanner) (*model.Content, error) {
	var c model.Content
	if err := row.Scan(&c.ContentID, &c.TransformID, &c.CollID, &c.RequestID, &c.MapID, &c.ContentDepID,
		&c.Scope, &c.Name, &c.MinID, &c.MaxID, &c.ContentType, &c.ContentRelationType, &c.Status, &c.Substatus,
		&c.Bytes, &c.MD5, &c.Adler32, &c.Path, &c.ExternalCollID, &c.ExternalContentID, &c.ContentMetadata,
		&c.CreatedAt, &c.UpdatedAt, &c.ExpiredAt); err != nil {
		return nil, fmt.Errorf("scan content: %w", err)
	}
	return &c, nil
}

func scanContents(rows pgxRows) ([]*model.Content, error) {
	var out []*model.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
