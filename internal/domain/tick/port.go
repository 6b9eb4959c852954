package tick

import "context"

type Repo interface {
	Insert(ctx context.Context, t *Tick) error
	// ListByTarget returns the target's linked ticks, newest first.
	ListByTarget(ctx context.Context, targetID int64, limit int) ([]*Tick, error)
	// GetByID resolves a tick directly from the result store, linked or not.
	GetByID(ctx context.Context, id int64) (*Tick, error)
}
