package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/pagination"
	"github.com/cloo-solutions/converso/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository handles the per-message audit log written by the
// inbound pipeline.
type MessageRepository struct {
	db dbtx
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: pool}
}

func NewMessageRepositoryWithTx(tx pgx.Tx) *MessageRepository {
	return &MessageRepository{db: tx}
}

func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	trace, err := json.Marshal(m.RetrievalTrace)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(m.DeliveryMeta)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO messages
		   (id, correspondent_id, inbound_text, answer_text, intent_name, intent_score,
		    retrieval_trace, delivery_status, delivery_meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.CorrespondentID, m.InboundText, m.AnswerText, m.IntentName, m.IntentScore,
		trace, string(m.DeliveryStatus), meta, m.CreatedAt,
	)
	return err
}

// UpdateDelivery records the outcome of the send attempt after the
// message row was written.
func (r *MessageRepository) UpdateDelivery(ctx context.Context, id string, status domain.DeliveryStatus, meta map[string]any) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE messages SET delivery_status = $1, delivery_meta = $2 WHERE id = $3`,
		string(status), encoded, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, correspondent_id, inbound_text, answer_text, intent_name, intent_score,
		        retrieval_trace, delivery_status, delivery_meta, created_at
		 FROM messages WHERE id = $1`,
		id,
	)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) ListWithCursor(ctx context.Context, correspondentID string, cursor *pagination.Cursor, limit int) (*service.MessagePageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, correspondent_id, inbound_text, answer_text, intent_name, intent_score,
		       retrieval_trace, delivery_status, delivery_meta, created_at
		FROM messages
		WHERE 1=1`
	var args []any

	if correspondentID != "" {
		args = append(args, correspondentID)
		query += fmt.Sprintf(" AND correspondent_id = $%d", len(args))
	}
	if cursor != nil {
		args = append(args, cursor.Timestamp, cursor.LastID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.MessagePageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// Stats aggregates message volume since the given instant, broken down
// by classified intent.
func (r *MessageRepository) Stats(ctx context.Context, since time.Time) (*service.MessageStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT intent_name, COUNT(*)
		 FROM messages
		 WHERE created_at >= $1
		 GROUP BY intent_name
		 ORDER BY intent_name`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &service.MessageStats{
		Since:    since,
		ByIntent: map[string]int64{},
	}
	for rows.Next() {
		var intent string
		var count int64
		if err := rows.Scan(&intent, &count); err != nil {
			return nil, err
		}
		stats.ByIntent[intent] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m      domain.Message
		trace  []byte
		meta   []byte
		status string
	)
	if err := row.Scan(
		&m.ID, &m.CorrespondentID, &m.InboundText, &m.AnswerText, &m.IntentName, &m.IntentScore,
		&trace, &status, &meta, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(trace) > 0 {
		if err := json.Unmarshal(trace, &m.RetrievalTrace); err != nil {
			return nil, err
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m.DeliveryMeta); err != nil {
			return nil, err
		}
	}
	m.DeliveryStatus = domain.DeliveryStatus(status)
	return &m, nil
}
