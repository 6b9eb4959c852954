package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vigilnet/vigil/internal/domain/validator"
)

var _ validator.Repo = (*ValidatorRepo)(nil)

type ValidatorRepo struct{ db *DB }

func NewValidatorRepo(db *DB) *ValidatorRepo { return &ValidatorRepo{db: db} }

const (
	qValidatorInsert = `
INSERT INTO validators (public_key, ip, pending_payout)
VALUES ($1, $2, 0)
RETURNING id, public_key, ip, pending_payout, created_at;`

	qValidatorByID = `
SELECT id, public_key, ip, pending_payout, created_at
FROM validators
WHERE id = $1;`

	qValidatorByKey = `
SELECT id, public_key, ip, pending_payout, created_at
FROM validators
WHERE public_key = $1;`

	qValidatorCredit = `
UPDATE validators
SET pending_payout = pending_payout + $2
WHERE id = $1;`
)

func (r *ValidatorRepo) Create(ctx context.Context, v *validator.Validator) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := scanValidator(r.db.Pool.QueryRow(ctx, qValidatorInsert, v.PublicKey, v.IP), v); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert validator: %w", err)
	}
	return nil
}

func (r *ValidatorRepo) GetByID(ctx context.Context, id int64) (*validator.Validator, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var v validator.Validator
	if err := scanValidator(r.db.Pool.QueryRow(ctx, qValidatorByID, id), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *ValidatorRepo) GetByPublicKey(ctx context.Context, publicKey string) (*validator.Validator, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var v validator.Validator
	if err := scanValidator(r.db.Pool.QueryRow(ctx, qValidatorByKey, publicKey), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *ValidatorRepo) Credit(ctx context.Context, id int64, amount int64) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	tag, err := eq.Exec(ctx, qValidatorCredit, id, amount)
	if err != nil {
		return 0, fmt.Errorf("credit validator: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanValidator(row pgx.Row, out *validator.Validator) error {
	if err := row.Scan(&out.ID, &out.PublicKey, &out.IP, &out.PendingPayout, &out.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan validator: %w", err)
	}
	return nil
}
