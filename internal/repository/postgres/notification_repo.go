package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vigilnet/vigil/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

const (
	qNotifInsert = `
INSERT INTO notifications (target_id, owner_id, type, sent_at, payload)
VALUES ($1, $2, $3, COALESCE($4, now()), $5)
RETURNING id, sent_at;`

	qNotifByOwner = `
SELECT id, target_id, owner_id, type, sent_at, payload
FROM notifications
WHERE owner_id = $1
ORDER BY sent_at DESC
LIMIT $2;`
)

func (r *NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.Pool.QueryRow(ctx, qNotifInsert,
		n.TargetID, n.OwnerID, n.Type, nullTime(n.SentAt), n.Payload,
	).Scan(&n.ID, &n.SentAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qNotifByOwner, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0, limit)
	for rows.Next() {
		var n notification.Notification
		if err := rows.Scan(&n.ID, &n.TargetID, &n.OwnerID, &n.Type, &n.SentAt, &n.Payload); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		nc := n
		out = append(out, &nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
