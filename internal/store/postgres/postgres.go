// Package postgres implements idds/store's ports on top of
// github.com/jackc/pgx/v5, following internal/infra/kernel's
// PostgresStore: row claiming via FOR UPDATE SKIP LOCKED inside an
// UPDATE ... RETURNING, one table per entity, JSONB metadata columns.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iddsorg/idds/internal/logging"
	"github.com/iddsorg/idds/internal/store"
)

// Store implements store.Store backed by a pgxpool.Pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *logging.Logger

	requests    *RequestStore
	transforms  *TransformStore
	processings *ProcessingStore
	collections *CollectionStore
	contents    *ContentStore
	messages    *MessageStore
	health      *HealthStore
	commands    *CommandStore
}

var _ store.Store = (*Store)(nil)

// New wires a Store over an existing pool. The caller owns pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool, logger: logging.NewComponentLogger("PostgresStore")}
	s.requests = &RequestStore{pool: pool}
	s.transforms = &TransformStore{pool: pool}
	s.processings = &ProcessingStore{pool: pool}
	s.collections = &CollectionStore{pool: pool}
	s.contents = &ContentStore{pool: pool}
	s.messages = &MessageStore{pool: pool}
	s.health = &HealthStore{pool: pool}
	s.commands = &CommandStore{pool: pool}
	return s
}

func (s *Store) Requests() store.RequestStore       { return s.requests }
func (s *Store) Transforms() store.TransformStore     { return s.transforms }
func (s *Store) Processings() store.ProcessingStore   { return s.processings }
func (s *Store) Collections() store.CollectionStore   { return s.collections }
func (s *Store) Contents() store.ContentStore         { return s.contents }
func (s *Store) Messages() store.MessageStore         { return s.messages }
func (s *Store) Health() store.HealthStore            { return s.health }
func (s *Store) Commands() store.CommandStore         { return s.commands }

// EnsureSchema creates every table and index idds needs if not already
// present, the way PostgresStore.EnsureSchema does for the single
// kernel_dispatch_tasks table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			request_id BIGSERIAL PRIMARY KEY,
			scope TEXT NOT NULL,
			name TEXT NOT NULL,
			workload_id TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			substatus TEXT NOT NULL DEFAULT '',
			locking TEXT NOT NULL DEFAULT 'idle',
			new_retries INTEGER NOT NULL DEFAULT 0,
			update_retries INTEGER NOT NULL DEFAULT 0,
			max_new_retries INTEGER NOT NULL DEFAULT 3,
			max_update_retries INTEGER NOT NULL DEFAULT 3,
			new_poll_period BIGINT NOT NULL DEFAULT 60000000000,
			update_poll_period BIGINT NOT NULL DEFAULT 120000000000,
			next_poll_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expired_at TIMESTAMPTZ,
			request_metadata JSONB,
			processing_metadata JSONB,
			errors TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (scope, name, workload_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status_poll ON requests (status, locking, next_poll_at)`,

		`CREATE TABLE IF NOT EXISTS transforms (
			transform_id BIGSERIAL PRIMARY KEY,
			request_id BIGINT NOT NULL REFERENCES requests(request_id),
			transform_type TEXT NOT NULL,
			transform_tag TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			substatus TEXT NOT NULL DEFAULT '',
			locking TEXT NOT NULL DEFAULT 'idle',
			new_retries INTEGER NOT NULL DEFAULT 0,
			update_retries INTEGER NOT NULL DEFAULT 0,
			max_new_retries INTEGER NOT NULL DEFAULT 3,
			max_update_retries INTEGER NOT NULL DEFAULT 3,
			new_poll_period BIGINT NOT NULL DEFAULT 60000000000,
			update_poll_period BIGINT NOT NULL DEFAULT 120000000000,
			next_poll_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			transform_metadata JSONB,
			running_metadata JSONB,
			errors TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transforms_request ON transforms (request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transforms_status_poll ON transforms (status, locking, next_poll_at)`,

		`CREATE TABLE IF NOT EXISTS processings (
			processing_id BIGSERIAL PRIMARY KEY,
			transform_id BIGINT NOT NULL REFERENCES transforms(transform_id),
			request_id BIGINT NOT NULL,
			workload_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			substatus TEXT NOT NULL DEFAULT '',
			locking TEXT NOT NULL DEFAULT 'idle',
			submitter TEXT NOT NULL DEFAULT '',
			submitted_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			expired_at TIMESTAMPTZ,
			retry_number INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 3,
			polling_retries INTEGER NOT NULL DEFAULT 0,
			next_poll_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			processing_metadata JSONB,
			running_metadata JSONB,
			output_metadata JSONB,
			errors TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processings_transform ON processings (transform_id)`,
		`CREATE INDEX IF NOT EXISTS idx_processings_status_poll ON processings (status, locking, next_poll_at)`,

		`CREATE TABLE IF NOT EXISTS collections (
			coll_id BIGSERIAL PRIMARY KEY,
			transform_id BIGINT NOT NULL REFERENCES transforms(transform_id),
			request_id BIGINT NOT NULL,
			relation_type TEXT NOT NULL,
			coll_type TEXT NOT NULL,
			status TEXT NOT NULL,
			scope TEXT NOT NULL,
			name TEXT NOT NULL,
			total_files INTEGER NOT NULL DEFAULT 0,
			processed_files INTEGER NOT NULL DEFAULT 0,
			processing_files INTEGER NOT NULL DEFAULT 0,
			failed_files INTEGER NOT NULL DEFAULT 0,
			missing_files INTEGER NOT NULL DEFAULT 0,
			external_bytes BIGINT NOT NULL DEFAULT 0,
			external_total_files INTEGER NOT NULL DEFAULT 0,
			external_is_open BOOLEAN NOT NULL DEFAULT false,
			coll_metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_collections_transform ON collections (transform_id)`,

		`CREATE TABLE IF NOT EXISTS contents (
			content_id BIGSERIAL PRIMARY KEY,
			transform_id BIGINT NOT NULL,
			coll_id BIGINT NOT NULL REFERENCES collections(coll_id),
			request_id BIGINT NOT NULL,
			map_id BIGINT NOT NULL DEFAULT 0,
			content_dep_id BIGINT REFERENCES contents(content_id),
			scope TEXT NOT NULL,
			name TEXT NOT NULL,
			min_id BIGINT NOT NULL DEFAULT 0,
			max_id BIGINT NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			content_relation_type TEXT NOT NULL,
			status TEXT NOT NULL,
			substatus TEXT NOT NULL,
			bytes BIGINT NOT NULL DEFAULT 0,
			md5 TEXT NOT NULL DEFAULT '',
			adler32 TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			external_coll_id BIGINT,
			external_content_id TEXT NOT NULL DEFAULT '',
			content_metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expired_at TIMESTAMPTZ,
			UNIQUE (transform_id, coll_id, map_id, name, min_id, max_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contents_collection ON contents (coll_id)`,
		`CREATE INDEX IF NOT EXISTS idx_contents_dep ON contents (content_dep_id) WHERE content_dep_id IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS messages (
			msg_id BIGSERIAL PRIMARY KEY,
			msg_type TEXT NOT NULL,
			status TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			destination TEXT NOT NULL DEFAULT '',
			request_id BIGINT,
			transform_id BIGINT,
			processing_id BIGINT,
			num_contents INTEGER NOT NULL DEFAULT 0,
			msg_content JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_status ON messages (status, created_at)`,

		`CREATE TABLE IF NOT EXISTS healths (
			agent TEXT NOT NULL,
			hostname TEXT NOT NULL,
			pid INTEGER NOT NULL,
			thread_id BIGINT NOT NULL,
			payload JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (agent, hostname, pid, thread_id)
		)`,

		`CREATE TABLE IF NOT EXISTS commands (
			cmd_id BIGSERIAL PRIMARY KEY,
			cmd_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'new',
			request_id BIGINT,
			transform_id BIGINT,
			processing_id BIGINT,
			cmd_content JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_status ON commands (status, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure idds schema: %w", err)
		}
	}
	return nil
}

// CleanLocking sweeps every entity table for rows whose Locking flag has
// been set longer than olderThan, resetting it to Idle. This is the
// cleanLocking periodic task from §5: a worker can die mid-update and leave
// a row permanently claimed otherwise.
func (s *Store) CleanLocking(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	total := 0
	for _, table := range []string{"requests", "transforms", "processings"} {
		tag, err := s.pool.Exec(ctx,
			`UPDATE `+table+` SET locking = 'idle' WHERE locking != 'idle' AND updated_at < $1`, cutoff)
		if err != nil {
			return total, fmt.Errorf("clean locking on %s: %w", table, err)
		}
		total += int(tag.RowsAffected())
	}
	return total, nil
}

// pgxRows abstracts pgx row iteration for scanning, matching the teacher's
// scanDispatches helper interface.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}
