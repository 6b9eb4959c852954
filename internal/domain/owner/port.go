package owner

import "context"

type Repo interface {
	GetByID(ctx context.Context, id int64) (*Owner, error)
	GetByEmail(ctx context.Context, email string) (*Owner, error)
	Create(ctx context.Context, o *Owner) error
}
