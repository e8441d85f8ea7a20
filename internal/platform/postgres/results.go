package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dontdude/markcheck/internal/domain"
)

// ResultStore persists trademark results.
type ResultStore struct {
	db DB
}

var _ domain.ResultStore = (*ResultStore)(nil)

// NewResultStore returns a store backed by db.
func NewResultStore(db DB) *ResultStore {
	return &ResultStore{db: db}
}

type resultRow struct {
	ID              int64           `db:"id"`
	OwnerKey        string          `db:"owner_key"`
	Name            string          `db:"name"`
	ProductCategory string          `db:"product_category"`
	ImageURL        string          `db:"image_url"`
	Results         json.RawMessage `db:"results"`
	CreatedAt       time.Time       `db:"created_at"`
}

func (r resultRow) record() domain.Record {
	return domain.Record{
		ID:              r.ID,
		OwnerKey:        r.OwnerKey,
		Name:            r.Name,
		ProductCategory: r.ProductCategory,
		ImageReference:  r.ImageURL,
		Results:         r.Results,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

// Save inserts rec. A zero CreatedAt is filled in by the database.
func (s *ResultStore) Save(ctx context.Context, rec domain.Record) (domain.Record, error) {
	const query = `
		INSERT INTO trademark_results (owner_key, name, product_category, image_url, results, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		RETURNING id, created_at`

	var createdAt *time.Time
	if !rec.CreatedAt.IsZero() {
		createdAt = &rec.CreatedAt
	}

	err := s.db.QueryRow(ctx, query,
		rec.OwnerKey, rec.Name, rec.ProductCategory, rec.ImageReference, rec.Results, createdAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return domain.Record{}, fmt.Errorf("insert trademark_results: %w", classify(err))
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// ListByOwner returns the owner's records by ascending creation time.
func (s *ResultStore) ListByOwner(ctx context.Context, ownerKey string) ([]domain.Record, error) {
	const query = `
		SELECT id, owner_key, name, product_category, image_url, results, created_at
		FROM trademark_results
		WHERE owner_key = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(ctx, query, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("list trademark_results: %w", classify(err))
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[resultRow])
	if err != nil {
		return nil, fmt.Errorf("scan trademark_results: %w", classify(err))
	}

	out := make([]domain.Record, 0, len(collected))
	for _, row := range collected {
		out = append(out, row.record())
	}
	return out, nil
}
