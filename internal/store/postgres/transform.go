package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// TransformStore implements store.TransformStore.
type TransformStore struct {
	pool *pgxpool.Pool
}

var _ store.TransformStore = (*TransformStore)(nil)

func (s *TransformStore) Create(ctx context.Context, t *model.Transform) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO transforms (request_id, transform_type, transform_tag, status, substatus,
			new_poll_period, update_poll_period, max_new_retries, max_update_retries,
			transform_metadata, running_metadata, errors)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING transform_id, created_at, updated_at, next_poll_at`,
		t.RequestID, t.TransformType, t.TransformTag, t.Status, t.Substatus,
		t.NewPollPeriod, t.UpdatePollPeriod, t.MaxNewRetries, t.MaxUpdateRetries,
		t.TransformMetadata, t.RunningMetadata, t.Errors,
	).Scan(&t.TransformID, &t.CreatedAt, &t.UpdatedAt, &t.NextPollAt)
}

func (s *TransformStore) Get(ctx context.Context, transformID int64) (*model.Transform, error) {
	row := s.pool.QueryRow(ctx, transformSelectColumns+` WHERE transform_id = $1`, transformID)
	return scanTransform(row)
}

func (s *TransformStore) Update(ctx context.Context, t *model.Transform) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE transforms SET status=$1, substatus=$2, new_retries=$3, update_retries=$4,
			next_poll_at=$5, transform_metadata=$6, running_metadata=$7, errors=$8,
			updated_at=now(), locking='idle'
		 WHERE transform_id=$9`,
		t.Status, t.Substatus, t.NewRetries, t.UpdateRetries,
		t.NextPollAt, t.TransformMetadata, t.RunningMetadata, t.Errors, t.TransformID,
	)
	return err
}

func (s *TransformStore) ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Transform, error) {
	return s.claim(ctx, `status = $2`, limit, string(model.TransformNew))
}

func (s *TransformStore) ClaimForUpdate(ctx context.Context, workerID string, opts store.ListOptions) ([]*model.Transform, error) {
	pollableBy := opts.PollableBy
	if pollableBy.IsZero() {
		pollableBy = time.Now()
	}
	return s.claim(ctx, `status != $2 AND next_poll_at <= $3`, opts.Limit, string(model.TransformNew), pollableBy.UTC())
}

func (s *TransformStore) claim(ctx context.Context, predicate string, limit int, extraArgs ...any) ([]*model.Transform, error) {
	if limit <= 0 {
		limit = 1000
	}
	args := append([]any{limit}, extraArgs...)
	rows, err := s.pool.Query(ctx,
		`UPDATE transforms SET locking = 'locking', updated_at = now()
		 WHERE transform_id IN (
			SELECT transform_id FROM transforms
			WHERE `+predicate+` AND locking = 'idle'
			ORDER BY transform_id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		 )
		 RETURNING `+transformReturningColumns,
		args...)
	if err != nil {
		return nil, fmt.Errorf("claim transforms: %w", err)
	}
	defer rows.Close()
	return scanTransforms(rows)
}

func (s *TransformStore) Release(ctx context.Context, transformID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE transforms SET locking = 'idle', updated_at = now() WHERE transform_id = $1`, transformID)
	return err
}

func (s *TransformStore) ListByRequest(ctx context.Context, requestID int64) ([]*model.Transform, error) {
	rows, err := s.pool.Query(ctx, transformSelectColumns+` WHERE request_id = $1 ORDER BY transform_id ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list transforms by request: %w", err)
	}
	defer rows.Close()
	return scanTransforms(rows)
}

const transformReturningColumns = `transform_id, request_id, transform_type, transform_tag, status, substatus,
	locking, new_retries, update_retries, max_new_retries, max_update_retries,
	new_poll_period, update_poll_period, next_poll_at,
	transform_metadata, running_metadata, errors, created_at, updated_at`

const transformSelectColumns = `SELECT ` + transformReturningColumns + ` FROM transforms`

func scanTransform(row rowScanner) (*model.Transform, error) {
	var t model.Transform
	if err := row.Scan(&t.TransformID, &t.RequestID, &t.TransformType, &t.TransformTag, &t.Status, &t.Substatus,
		&t.Locking, &t.NewRetries, &t.UpdateRetries, &t.MaxNewRetries, &t.MaxUpdateRetries,
		&t.NewPollPeriod, &t.UpdatePollPeriod, &t.NextPollAt,
		&t.TransformMetadata, &t.RunningMetadata, &t.Errors, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan transform: %w", err)
	}
	return &t, nil
}

func scanTransforms(rows pgxRows) ([]*model.Transform, error) {
	var out []*model.Transform
	for rows.Next() {
		t, err := scanTransform(rows)
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
