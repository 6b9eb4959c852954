package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vigilnet/vigil/internal/domain/target"
)

var _ target.Repo = (*TargetRepo)(nil)

type TargetRepo struct{ db *DB }

func NewTargetRepo(db *DB) *TargetRepo { return &TargetRepo{db: db} }

const (
	qTargetInsert = `
INSERT INTO targets (owner_id, url, disabled, alert_cooldown_minutes)
VALUES ($1, $2, FALSE, $3)
RETURNING id, owner_id, url, disabled, last_alert_at, alert_cooldown_minutes, created_at;`

	qTargetByID = `
SELECT id, owner_id, url, disabled, last_alert_at, alert_cooldown_minutes, created_at
FROM targets
WHERE id = $1;`

	qTargetsEnabled = `
SELECT id, owner_id, url, disabled, last_alert_at, alert_cooldown_minutes, created_at
FROM targets
WHERE disabled = FALSE
ORDER BY id;`

	// The ownership condition lives in the SELECT: zero rows inserted means
	// the target is gone or no longer owned by the captured owner, and the
	// tick stays orphaned.
	qTargetLinkTick = `
INSERT INTO target_ticks (target_id, tick_id)
SELECT id, $3 FROM targets WHERE id = $1 AND owner_id = $2;`

	qTargetSetLastAlert = `
UPDATE targets SET last_alert_at = $2 WHERE id = $1;`
)

func (r *TargetRepo) Create(ctx context.Context, t *target.Target) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := scanTarget(r.db.Pool.QueryRow(ctx, qTargetInsert, t.OwnerID, t.URL, t.AlertCooldownMinutes), t); err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (r *TargetRepo) GetByID(ctx context.Context, id int64) (*target.Target, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t target.Target
	if err := scanTarget(r.db.Pool.QueryRow(ctx, qTargetByID, id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TargetRepo) ListEnabled(ctx context.Context) ([]*target.Target, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qTargetsEnabled)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var out []*target.Target
	for rows.Next() {
		var t target.Target
		if err := scanTarget(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *TargetRepo) LinkTick(ctx context.Context, targetID, ownerID, tickID int64) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	tag, err := eq.Exec(ctx, qTargetLinkTick, targetID, ownerID, tickID)
	if err != nil {
		return 0, fmt.Errorf("link tick: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *TargetRepo) SetLastAlert(ctx context.Context, targetID int64, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qTargetSetLastAlert, targetID, at); err != nil {
		return fmt.Errorf("set last alert: %w", err)
	}
	return nil
}

func scanTarget(row pgx.Row, out *target.Target) error {
	if err := row.Scan(
		&out.ID,
		&out.OwnerID,
		&out.URL,
		&out.Disabled,
		&out.LastAlertAt,
		&out.AlertCooldownMinutes,
		&out.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan target: %w", err)
	}
	return nil
}
