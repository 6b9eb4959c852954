package target

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, t *Target) error
	GetByID(ctx context.Context, id int64) (*Target, error)
	ListEnabled(ctx context.Context) ([]*Target, error)
	// LinkTick appends tickID to the target's result list, but only when the
	// target still exists and still belongs to ownerID. Returns rows matched:
	// 0 means the ownership condition failed and the tick stays orphaned.
	LinkTick(ctx context.Context, targetID, ownerID, tickID int64) (int64, error)
	SetLastAlert(ctx context.Context, targetID int64, at time.Time) error
}
