package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iddsorg/idds/internal/model"
	"github.com/iddsorg/idds/internal/store"
)

// MessageStore implements store.MessageStore.
type MessageStore struct {
	pool *pgxpool.Pool
}

var _ store.MessageStore = (*MessageStore)(nil)

func (s *MessageStore) Create(ctx context.Context, m *model.Message) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO messages (msg_type, status, source, destination, request_id, transform_id,
			processing_id, num_contents, msg_content)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING msg_id, created_at, updated_at`,
		m.MsgType, m.Status, m.Source, m.Destination, m.RequestID, m.TransformID,
		m.ProcessingID, m.NumContents, m.MsgContent,
	).Scan(&m.MsgID, &m.CreatedAt, &m.UpdatedAt)
}

func (s *MessageStore) ClaimNew(ctx context.Context, workerID string, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT msg_id, msg_type, status, source, destination, request_id, transform_id, processing_id,
			num_contents, msg_content, created_at, updated_at
		 FROM messages WHERE status = $1 ORDER BY msg_id ASC LIMIT $2`,
		string(model.MessageNew), limit)
	if err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.MsgID, &m.MsgType, &m.Status, &m.Source, &m.Destination,
			&m.RequestID, &m.TransformID, &m.ProcessingID, &m.NumContents, &m.MsgContent,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			return out, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *MessageStore) MarkDelivered(ctx context.Context, msgID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE messages SET status=$1, updated_at=now() WHERE msg_id=$2`,
		string(model.MessageDelivered), msgID)
	return err
}

func (s *MessageStore) ListByRequest(ctx context.Context, requestID int64) ([]*model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT msg_id, msg_type, status, source, destination, request_id, transform_id, processing_id,
			num_contents, msg_content, created_at, updated_at
		 FROM messages WHERE request_id = $1 ORDER BY msg_id ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list messages by request: %w", err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.MsgID, &m.MsgType, &m.Status, &m.Source, &m.Destination,
			&m.RequestID, &m.TransformID, &m.ProcessingID, &m.NumContents, &m.MsgContent,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			return out, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

