package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// CommandStore implements store.CommandStore.
type CommandStore struct {
	pool *pgxpool.Pool
}

var _ store.CommandStore = (*CommandStore)(nil)

func (s *CommandStore) Create(ctx context.Context, c *model.Command) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO commands (cmd_type, status, request_id, transform_id, processing_id, cmd_content)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 RETURNING cmd_id, created_at, updated_at`,
		c.CmdType, model.CommandNew, c.RequestID, c.TransformID, c.ProcessingID, c.CmdContent,
	).Scan(&c.CmdID, &c.CreatedAt, &c.UpdatedAt)
}

func (s *CommandStore) ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Command, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT cmd_id, cmd_type, status, request_id, transform_id, processing_id, cmd_content,
			created_at, updated_at
		 FROM commands WHERE status = $1 ORDER BY cmd_id ASC LIMIT $2`,
		string(model.CommandNew), limit)
	if err != nil {
		return nil, fmt.Errorf("claim commands: %w", err)
	}
	defer rows.Close()

	var out []*model.Command
	for rows.Next() {
		var c model.Command
		if err := rows.Scan(&c.CmdID, &c.CmdType, &c.Status, &c.RequestID, &c.TransformID, &c.ProcessingID,
			&c.CmdContent, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return out, fmt.Errorf("scan command: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *CommandStore) MarkProcessed(ctx context.Context, cmdID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE commands SET status=$1, updated_at=now() WHERE cmd_id=$2`,
		string(model.CommandProcessed), cmdID)
	return err
}
