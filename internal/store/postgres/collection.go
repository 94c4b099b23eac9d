package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// CollectionStore implements store.CollectionStore.
type CollectionStore struct {
	pool *pgxpool.Pool
}

var _ store.CollectionStore = (*CollectionStore)(nil)

func (s *CollectionStore) Create(ctx context.Context, c *model.Collection) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO collections (transform_id, request_id, relation_type, coll_type, status,
			scope, name, coll_metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING coll_id, created_at, updated_at`,
		c.TransformID, c.RequestID, c.RelationType, c.CollType, c.Status,
		c.Scope, c.Name, c.CollMetadata,
	).Scan(&c.CollID, &c.CreatedAt, &c.UpdatedAt)
}

func (s *CollectionStore) Get(ctx context.Context, collID int64) (*model.Collection, error) {
	row := s.pool.QueryRow(ctx, collectionSelectColumns+` WHERE coll_id = $1`, collID)
	return scanCollection(row)
}

func (s *CollectionStore) Update(ctx context.Context, c *model.Collection) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE collections SET status=$1, total_files=$2, processed_files=$3, processing_files=$4,
			failed_files=$5, missing_files=$6, external_bytes=$7, external_total_files=$8,
			external_is_open=$9, coll_metadata=$10, updated_at=now()
		 WHERE coll_id=$11`,
		c.Status, c.TotalFiles, c.ProcessedFiles, c.ProcessingFiles,
		c.FailedFiles, c.MissingFiles, c.ExternalBytes, c.ExternalTotalFiles,
		c.ExternalIsOpen, c.CollMetadata, c.CollID,
	)
	return err
}

func (s *CollectionStore) ListByTransform(ctx context.Context, transformID int64) ([]*model.Collection, error) {
	rows, err := s.pool.Query(ctx, collectionSelectColumns+` WHERE transform_id = $1 ORDER BY coll_id ASC`, transformID)
	if err != nil {
		return nil, fmt.Errorf("list collections by transform: %w", err)
	}
	defer rows.Close()

	var out []*model.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const collectionSelectColumns = `SELECT coll_id, transform_id, request_id, relation_type, coll_type, status,
	scope, name, total_files, processed_files, processing_files, failed_files, missing_files,
	external_bytes, external_total_files, external_is_open, coll_metadata, created_at, updated_at
	FROM collections`

func scanCollection(row rowScanner) (*model.Collection, error) {
	var c model.Collection
	if err := row.Scan(&c.CollID, &c.TransformID, &c.RequestID, &c.RelationType, &c.CollType, &c.Status,
		&c.Scope, &c.Name, &c.TotalFiles, &c.ProcessedFiles, &c.ProcessingFiles, &c.FailedFiles, &c.MissingFiles,
		&c.ExternalBytes, &c.ExternalTotalFiles, &c.ExternalIsOpen, &c.CollMetadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	return &c, nil
}
