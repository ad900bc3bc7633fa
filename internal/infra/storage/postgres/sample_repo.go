package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/relay/internal/core/domain"
)

// SampleRepo implements storage.SampleRepository using PostgreSQL.
type SampleRepo struct {
	db *DB
}

// NewSampleRepo creates a new PostgreSQL sample repository.
func NewSampleRepo(db *DB) *SampleRepo {
	return &SampleRepo{db: db}
}

type sampleRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Email     sql.NullString `db:"email"`
	Tags      pq.StringArray `db:"tags"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r sampleRow) toDomain() *domain.Sample {
	return &domain.Sample{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email.String,
		Tags:      []string(r.Tags),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// List retrieves all samples in creation order.
func (r *SampleRepo) List(ctx context.Context) ([]*domain.Sample, error) {
	var rows []sampleRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, email, tags, created_at, updated_at
		FROM samples
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}

	out := make([]*domain.Sample, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Get retrieves a sample by id.
func (r *SampleRepo) Get(ctx context.Context, id string) (*domain.Sample, error) {
	var row sampleRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, name, email, tags, created_at, updated_at
		FROM samples
		WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("sample %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sample: %w", err)
	}
	return row.toDomain(), nil
}

// Create stores a new sample.
func (r *SampleRepo) Create(ctx context.Context, s *domain.Sample) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO samples (id, name, email, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Name, nullString(s.Email), pq.Array(s.Tags), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sample: %w", err)
	}
	return nil
}

// Update overwrites an existing sample.
func (r *SampleRepo) Update(ctx context.Context, s *domain.Sample) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE samples
		SET name = $2, email = $3, tags = $4, updated_at = $5
		WHERE id = $1`,
		s.ID, s.Name, nullString(s.Email), pq.Array(s.Tags), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update sample: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update sample: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("sample %s not found", s.ID)
	}
	return nil
}

// Delete removes a sample; deleting an absent id is NOT_FOUND.
func (r *SampleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM samples WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sample: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete sample: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundf("sample %s not found", id)
	}
	return nil
}

// Count returns the number of stored samples.
func (r *SampleRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM samples`); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
