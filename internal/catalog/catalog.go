// Package catalog is the read side of the services collection, plus the
// bulk import used to populate it out-of-band.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"deltacar/server/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvalidID = errors.New("invalid service id")

type Catalog struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) List(ctx context.Context, q Query) ([]storage.Document, error) {
	query, args := listSQL(q)
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	result := make([]storage.Document, 0)
	for rows.Next() {
		var (
			id  uuid.UUID
			doc storage.Document
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		result = append(result, doc.WithID(id))
	}

	return result, rows.Err()
}

// Get returns the service with the given id, or nil when there is none.
func (c *Catalog) Get(ctx context.Context, rawID string) (storage.Document, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidID, rawID, err)
	}

	var doc storage.Document
	err = c.pool.QueryRow(ctx, `SELECT doc FROM services WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return doc.WithID(id), nil
}

// Import upserts docs in one transaction. Documents carrying a UUID under
// _id keep it; the rest get a fresh one.
func (c *Catalog) Import(ctx context.Context, docs []storage.Document) ([]uuid.UUID, error) {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(docs))
	for _, doc := range docs {
		id, ok := doc.ID()
		if !ok {
			id = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, doc)
			VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
			id, doc.Body(),
		)
		if err != nil {
			return nil, fmt.Errorf("insert service: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}
