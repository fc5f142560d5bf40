package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cloo-solutions/converso/internal/domain"
	"github.com/cloo-solutions/converso/internal/pagination"
	"github.com/cloo-solutions/converso/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CorrespondentRepository handles persistence of chat correspondents and
// their enriched profiles.
type CorrespondentRepository struct {
	db dbtx
}

func NewCorrespondentRepository(pool *pgxpool.Pool) *CorrespondentRepository {
	return &CorrespondentRepository{db: pool}
}

func NewCorrespondentRepositoryWithTx(tx pgx.Tx) *CorrespondentRepository {
	return &CorrespondentRepository{db: tx}
}

// UpsertByPhone resolves the correspondent for a normalized phone number,
// creating the row on first contact. last_seen_at is refreshed either way.
// The statement is idempotent so concurrent first messages from the same
// phone resolve to a single row.
func (r *CorrespondentRepository) UpsertByPhone(ctx context.Context, c *domain.Correspondent) (*domain.Correspondent, error) {
	confidence, err := encodeConfidence(c.FieldConfidence)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO correspondents
		   (id, phone, name, company, salary, address, notes, field_confidence, last_seen_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (phone) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
		 RETURNING id, phone, name, company, salary, address, notes, field_confidence, last_seen_at, created_at, updated_at`,
		c.ID, c.Phone, c.Name, c.Company, c.Salary, c.Address, c.Notes,
		confidence, c.LastSeenAt, c.CreatedAt, c.UpdatedAt,
	)
	return scanCorrespondent(row)
}

func (r *CorrespondentRepository) GetByID(ctx context.Context, id string) (*domain.Correspondent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, phone, name, company, salary, address, notes, field_confidence, last_seen_at, created_at, updated_at
		 FROM correspondents WHERE id = $1`,
		id,
	)
	c, err := scanCorrespondent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCorrespondentNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *CorrespondentRepository) GetByPhone(ctx context.Context, phone string) (*domain.Correspondent, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, phone, name, company, salary, address, notes, field_confidence, last_seen_at, created_at, updated_at
		 FROM correspondents WHERE phone = $1`,
		phone,
	)
	c, err := scanCorrespondent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCorrespondentNotFound
		}
		return nil, err
	}
	return c, nil
}

// Update persists the profile fields and the per-field confidence map
// after a merge pass.
func (r *CorrespondentRepository) Update(ctx context.Context, c *domain.Correspondent) error {
	confidence, err := encodeConfidence(c.FieldConfidence)
	if err != nil {
		return err
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE correspondents
		 SET name = $1, company = $2, salary = $3, address = $4, notes = $5,
		     field_confidence = $6, last_seen_at = $7, updated_at = $8
		 WHERE id = $9`,
		c.Name, c.Company, c.Salary, c.Address, c.Notes,
		confidence, c.LastSeenAt, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrCorrespondentNotFound
	}
	return nil
}

func (r *CorrespondentRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.CorrespondentPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, phone, name, company, salary, address, notes, field_confidence, last_seen_at, created_at, updated_at
			 FROM correspondents
			 WHERE (last_seen_at, id) < ($1, $2)
			 ORDER BY last_seen_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, phone, name, company, salary, address, notes, field_confidence, last_seen_at, created_at, updated_at
			 FROM correspondents
			 ORDER BY last_seen_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Correspondent
	for rows.Next() {
		c, err := scanCorrespondent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
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
		nextCursor = pagination.EncodeCursor(last.ID, last.LastSeenAt)
	}

	return &service.CorrespondentPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func (r *CorrespondentRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM correspondents`).Scan(&count)
	return count, err
}

func scanCorrespondent(row rowScanner) (*domain.Correspondent, error) {
	var c domain.Correspondent
	var confidence []byte
	if err := row.Scan(
		&c.ID, &c.Phone, &c.Name, &c.Company, &c.Salary, &c.Address, &c.Notes,
		&confidence, &c.LastSeenAt, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(confidence) > 0 {
		if err := json.Unmarshal(confidence, &c.FieldConfidence); err != nil {
			return nil, err
		}
	}
	if c.FieldConfidence == nil {
		c.FieldConfidence = map[string]float64{}
	}
	return &c, nil
}

func encodeConfidence(m map[string]float64) ([]byte, error) {
	if m == nil {
		m = map[string]float64{}
	}
	return json.Marshal(m)
}
