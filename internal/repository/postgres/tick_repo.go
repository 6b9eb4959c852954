package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vigilnet/vigil/internal/domain/tick"
)

var _ tick.Repo = (*TickRepo)(nil)

type TickRepo struct{ db *DB }

func NewTickRepo(db *DB) *TickRepo { return &TickRepo{db: db} }

const (
	qTickInsert = `
INSERT INTO ticks (target_id, validator_id, status, latency_ms, observed_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id;`

	// Only linked ticks count as the target's history.
	qTicksByTarget = `
SELECT t.id, t.target_id, t.validator_id, t.status, t.latency_ms, t.observed_at
FROM ticks t
JOIN target_ticks tt ON tt.tick_id = t.id
WHERE tt.target_id = $1
ORDER BY t.observed_at DESC, t.id DESC
LIMIT $2;`

	qTickByID = `
SELECT id, target_id, validator_id, status, latency_ms, observed_at
FROM ticks
WHERE id = $1;`
)

func (r *TickRepo) Insert(ctx context.Context, t *tick.Tick) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qTickInsert,
		t.TargetID, t.ValidatorID, string(t.Status), t.LatencyMs, t.ObservedAt,
	).Scan(&t.ID); err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

func (r *TickRepo) ListByTarget(ctx context.Context, targetID int64, limit int) ([]*tick.Tick, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qTicksByTarget, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	out := make([]*tick.Tick, 0, limit)
	for rows.Next() {
		var t tick.Tick
		if err := scanTick(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *TickRepo) GetByID(ctx context.Context, id int64) (*tick.Tick, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t tick.Tick
	if err := scanTick(r.db.Pool.QueryRow(ctx, qTickByID, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTick(row pgx.Row, out *tick.Tick) error {
	var status string
	if err := row.Scan(&out.ID, &out.TargetID, &out.ValidatorID, &status, &out.LatencyMs, &out.ObservedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan tick: %w", err)
	}
	out.Status = tick.Status(status)
	return nil
}
