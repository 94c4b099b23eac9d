package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// RequestStore implements store.RequestStore.
type RequestStore struct {
	pool *pgxpool.Pool
}

var _ store.RequestStore = (*RequestStore)(nil)

func (s *RequestStore) Create(ctx context.Context, r *model.Request) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO requests (scope, name, workload_id, priority, status, substatus,
			new_poll_period, update_poll_period, max_new_retries, max_update_retries,
			request_metadata, processing_metadata, errors)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 RETURNING request_id, created_at, updated_at, next_poll_at`,
		r.Scope, r.Name, r.WorkloadID, r.Priority, r.Status, r.Substatus,
		r.NewPollPeriod, r.UpdatePollPeriod, r.MaxNewRetries, r.MaxUpdateRetries,
		r.RequestMetadata, r.ProcessingMetadata, r.Errors,
	).Scan(&r.RequestID, &r.CreatedAt, &r.UpdatedAt, &r.NextPollAt)
}

func (s *RequestStore) Get(ctx context.Context, requestID int64) (*model.Request, error) {
	row := s.pool.QueryRow(ctx, requestSelectColumns+` WHERE request_id = $1`, requestID)
	return scanRequest(row)
}

func (s *RequestStore) Update(ctx context.Context, r *model.Request) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE requests SET status=$1, substatus=$2, new_retries=$3, update_retries=$4,
			next_poll_at=$5, expired_at=$6, request_metadata=$7, processing_metadata=$8,
			errors=$9, updated_at=now(), locking='idle'
		 WHERE request_id=$10`,
		r.Status, r.Substatus, r.NewRetries, r.UpdateRetries,
		r.NextPollAt, r.ExpiredAt, r.RequestMetadata, r.ProcessingMetadata,
		r.Errors, r.RequestID,
	)
	return err
}

// ClaimNew claims up to limit requests in New status, for a Clerk's
// get_new_requests cycle (§4.E). Grounded on ClaimDispatches' UPDATE ...
// FOR UPDATE SKIP LOCKED pattern.
func (s *RequestStore) ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Request, error) {
	return s.claim(ctx, `status = $2`, limit, string(model.RequestNew))
}

// ClaimForUpdate claims requests due for an update poll whose status is not
// New, for a Clerk's get_update_requests cycle.
func (s *RequestStore) ClaimForUpdate(ctx context.Context, workerID string, opts store.ListOptions) ([]*model.Request, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	pollableBy := opts.PollableBy
	if pollableBy.IsZero() {
		pollableBy = time.Now()
	}
	return s.claim(ctx, `status != $2 AND next_poll_at <= $3`, limit, string(model.RequestNew), pollableBy.UTC())
}

func (s *RequestStore) claim(ctx context.Context, predicate string, limit int, extraArgs ...any) ([]*model.Request, error) {
	if limit <= 0 {
		limit = 1000
	}
	args := append([]any{limit}, extraArgs...)
	rows, err := s.pool.Query(ctx,
		`UPDATE requests SET locking = 'locking', updated_at = now()
		 WHERE request_id IN (
			SELECT request_id FROM requests
			WHERE `+predicate+` AND locking = 'idle'
			ORDER BY priority DESC, request_id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		 )
		 RETURNING request_id, scope, name, workload_id, priority, status, substatus,
			locking, new_retries, update_retries, max_new_retries, max_update_retries,
			new_poll_period, update_poll_period, next_poll_at, expired_at,
			request_metadata, processing_metadata, errors, created_at, updated_at`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("claim requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s *RequestStore) Release(ctx context.Context, requestID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE requests SET locking = 'idle', updated_at = now() WHERE request_id = $1`, requestID)
	return err
}

func (s *RequestStore) List(ctx context.Context, opts store.ListOptions) ([]*model.Request, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, requestSelectColumns+` ORDER BY request_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

const requestSelectColumns = `SELECT request_id, scope, name, workload_id, priority, status, substatus,
	locking, new_retries, update_retries, max_new_retries, max_update_retries,
	new_poll_period, update_poll_period, next_poll_at, expired_at,
	request_metadata, processing_metadata, errors, created_at, updated_at
	FROM requests`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*model.Request, error) {
	var r model.Request
	if err := row.Scan(&r.RequestID, &r.Scope, &r.Name, &r.WorkloadID, &r.Priority, &r.Status, &r.Substatus,
		&r.Locking, &r.NewRetries, &r.UpdateRetries, &r.MaxNewRetries, &r.MaxUpdateRetries,
		&r.NewPollPeriod, &r.UpdatePollPeriod, &r.NextPollAt, &r.ExpiredAt,
		&r.RequestMetadata, &r.ProcessingMetadata, &r.Errors, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}
	return &r, nil
}

func scanRequests(rows pgxRows) ([]*model.Request, error) {
	var out []*model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
