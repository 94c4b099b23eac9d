package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// ProcessingStore implements store.ProcessingStore.
type ProcessingStore struct {
	pool *pgxpool.Pool
}

var _ store.ProcessingStore = (*ProcessingStore)(nil)

func (s *ProcessingStore) Create(ctx context.Context, p *model.Processing) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO processings (transform_id, request_id, workload_id, status, substatus,
			submitter, max_retries, processing_metadata, running_metadata, output_metadata, errors)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 RETURNING processing_id, created_at, updated_at, next_poll_at`,
		p.TransformID, p.RequestID, p.WorkloadID, p.Status, p.Substatus,
		p.Submitter, p.MaxRetries, p.ProcessingMetadata, p.RunningMetadata, p.OutputMetadata, p.Errors,
	).Scan(&p.ProcessingID, &p.CreatedAt, &p.UpdatedAt, &p.NextPollAt)
}

func (s *ProcessingStore) Get(ctx context.Context, processingID int64) (*model.Processing, error) {
	row := s.pool.QueryRow(ctx, processingSelectColumns+` WHERE processing_id = $1`, processingID)
	return scanProcessing(row)
}

func (s *ProcessingStore) Update(ctx context.Context, p *model.Processing) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE processings SET status=$1, substatus=$2, submitted_at=$3, finished_at=$4,
			expired_at=$5, retry_number=$6, polling_retries=$7, next_poll_at=$8,
			processing_metadata=$9, running_metadata=$10, output_metadata=$11, errors=$12,
			updated_at=now(), locking='idle'
		 WHERE processing_id=$13`,
		p.Status, p.Substatus, p.SubmittedAt, p.FinishedAt,
		p.ExpiredAt, p.RetryNumber, p.PollingRetries, p.NextPollAt,
		p.ProcessingMetadata, p.RunningMetadata, p.OutputMetadata, p.Errors, p.ProcessingID,
	)
	return err
}

func (s *ProcessingStore) ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Processing, error) {
	return s.claim(ctx, `status = $2`, limit, string(model.ProcessingSubmitting))
}

func (s *ProcessingStore) ClaimForUpdate(ctx context.Context, workerID string, opts store.ListOptions) ([]*model.Processing, error) {
	pollableBy := opts.PollableBy
	if pollableBy.IsZero() {
		pollableBy = time.Now()
	}
	return s.claim(ctx, `status != $2 AND next_poll_at <= $3`, opts.Limit, string(model.ProcessingSubmitting), pollableBy.UTC())
}

func (s *ProcessingStore) claim(ctx context.Context, predicate string, limit int, extraArgs ...any) ([]*model.Processing, error) {
	if limit <= 0 {
		limit = 1000
	}
	args := append([]any{limit}, extraArgs...)
	rows, err := s.pool.Query(ctx,
		`UPDATE processings SET locking = 'locking', updated_at = now()
		 WHERE processing_id IN (
			SELECT processing_id FROM processings
			WHERE `+predicate+` AND locking = 'idle'
			ORDER BY processing_id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		 )
		 RETURNING `+processingReturningColumns,
		args...)
	if err != nil {
		return nil, fmt.Errorf("claim processings: %w", err)
	}
	defer rows.Close()
	return scanProcessings(rows)
}

func (s *ProcessingStore) Release(ctx context.Context, processingID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE processings SET locking = 'idle', updated_at = now() WHERE processing_id = $1`, processingID)
	return err
}

func (s *ProcessingStore) ListByTransform(ctx context.Context, transformID int64) ([]*model.Processing, error) {
	rows, err := s.pool.Query(ctx, processingSelectColumns+` WHERE transform_id = $1 ORDER BY processing_id ASC`, transformID)
	if err != nil {
		return nil, fmt.Errorf("list processings by transform: %w", err)
	}
	defer rows.Close()
	return scanProcessings(rows)
}

// ActiveByTransform returns the at-most-one non-terminal Processing for a
// Transform (testable property 2: at most one active Processing per
// Transform at a time).
func (s *ProcessingStore) ActiveByTransform(ctx context.Context, transformID int64) (*model.Processing, error) {
	rows, err := s.pool.Query(ctx,
		processingSelectColumns+` WHERE transform_id = $1 AND status NOT IN ($2,$3,$4,$5) ORDER BY processing_id DESC LIMIT 1`,
		transformID, string(model.ProcessingFinished), string(model.ProcessingSubFinished),
		string(model.ProcessingFailed), string(model.ProcessingCancelled))
	if err != nil {
		return nil, fmt.Errorf("active processing by transform: %w", err)
	}
	defer rows.Close()
	results, err := scanProcessings(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

const processingReturningColumns = `processing_id, transform_id, request_id, workload_id, status, substatus,
	locking, submitter, submitted_at, finished_at, expired_at, created_at, updated_at, next_poll_at,
	retry_number, max_retries, polling_retries,
	processing_metadata, running_metadata, output_metadata, errors`

const processingSelectColumns = `SELECT ` + processingReturningColumns + ` FROM processings`

func scanProcessing(row rowScanner) (*model.Processing, error) {
	var p model.Processing
	if err := row.Scan(&p.ProcessingID, &p.TransformID, &p.RequestID, &p.WorkloadID, &p.Status, &p.Substatus,
		&p.Locking, &p.Submitter, &p.SubmittedAt, &p.FinishedAt, &p.ExpiredAt, &p.CreatedAt, &p.UpdatedAt, &p.NextPollAt,
		&p.RetryNumber, &p.MaxRetries, &p.PollingRetries,
		&p.ProcessingMetadata, &p.RunningMetadata, &p.OutputMetadata, &p.Errors); err != nil {
		return nil, fmt.Errorf("scan processing: %w", err)
	}
	return &p, nil
}

func scanProcessings(rows pgxRows) ([]*model.Processing, error) {
	var out []*model.Processing
	for rows.Next() {
		p, err := scanProcessing(rows)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
