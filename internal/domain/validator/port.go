package validator

import "context"

type Repo interface {
	Create(ctx context.Context, v *Validator) error
	GetByID(ctx context.Context, id int64) (*Validator, error)
	GetByPublicKey(ctx context.Context, publicKey string) (*Validator, error)
	// Credit adds amount to the validator's pending payout. Returns the
	// number of rows matched: 0 means the validator id is unknown.
	Credit(ctx context.Context, id int64, amount int64) (int64, error)
}
