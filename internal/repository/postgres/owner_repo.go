package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vigilnet/vigil/internal/domain/owner"
)

var _ owner.Repo = (*OwnerRepo)(nil)

type OwnerRepo struct{ db *DB }

func NewOwnerRepo(db *DB) *OwnerRepo { return &OwnerRepo{db: db} }

const (
	qOwnerInsert = `
INSERT INTO owners (email)
VALUES ($1)
RETURNING id, email, created_at;`

	qOwnerByID = `
SELECT id, email, created_at FROM owners WHERE id = $1;`

	qOwnerByEmail = `
SELECT id, email, created_at FROM owners WHERE email = $1;`
)

func (r *OwnerRepo) Create(ctx context.Context, o *owner.Owner) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.Pool.QueryRow(ctx, qOwnerInsert, o.Email).
		Scan(&o.ID, &o.Email, &o.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert owner: %w", err)
	}
	return nil
}

func (r *OwnerRepo) GetByID(ctx context.Context, id int64) (*owner.Owner, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var o owner.Owner
	if err := scanOwner(r.db.Pool.QueryRow(ctx, qOwnerByID, id), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OwnerRepo) GetByEmail(ctx context.Context, email string) (*owner.Owner, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var o owner.Owner
	if err := scanOwner(r.db.Pool.QueryRow(ctx, qOwnerByEmail, email), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOwner(row pgx.Row, out *owner.Owner) error {
	if err := row.Scan(&out.ID, &out.Email, &out.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan owner: %w", err)
	}
	return nil
}
