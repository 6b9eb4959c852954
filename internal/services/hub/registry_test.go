package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vigilnet/vigil/internal/domain/validator"
	"github.com/vigilnet/vigil/internal/repository/postgres"
)

func TestRegistryRegisterCreatesUnknownKey(t *testing.T) {
	repo := &fakeValidatorRepo{}
	reg := newTestRegistry(t, repo)
	conn := &fakeConn{}

	p, err := reg.RegisterOrGet(context.Background(), "pk-1", "203.0.113.7", conn)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ValidatorID)
	require.Equal(t, "pk-1", p.PublicKey)
	require.Len(t, reg.Snapshot(), 1)
}

func TestRegistryReconnectKeepsIdentity(t *testing.T) {
	repo := &fakeValidatorRepo{}
	reg := newTestRegistry(t, repo)

	first, err := reg.RegisterOrGet(context.Background(), "pk-1", "", &fakeConn{})
	require.NoError(t, err)

	again, err := reg.RegisterOrGet(context.Background(), "pk-1", "", &fakeConn{})
	require.NoError(t, err)
	require.Equal(t, first.ValidatorID, again.ValidatorID)
}

func TestRegistrySignupRaceFallsBackToLookup(t *testing.T) {
	// The concurrent winner already persisted the key, so Create conflicts
	// and the loser must pick up the winner's row.
	repo := &fakeValidatorRepo{
		byKey:     map[string]*validator.Validator{"pk-1": {ID: 42, PublicKey: "pk-1"}},
		createErr: postgres.ErrConflict,
	}
	// Simulate the not-found-then-conflict window by removing the row for the
	// first lookup only.
	reg := newTestRegistry(t, &racingValidatorRepo{inner: repo})

	p, err := reg.RegisterOrGet(context.Background(), "pk-1", "", &fakeConn{})
	require.NoError(t, err)
	require.Equal(t, int64(42), p.ValidatorID)
}

// racingValidatorRepo misses the first GetByPublicKey and delegates after
// that, modeling a row that appears between lookup and create.
type racingValidatorRepo struct {
	inner   *fakeValidatorRepo
	lookups int
}

func (r *racingValidatorRepo) Create(ctx context.Context, v *validator.Validator) error {
	return r.inner.Create(ctx, v)
}

func (r *racingValidatorRepo) GetByID(ctx context.Context, id int64) (*validator.Validator, error) {
	return r.inner.GetByID(ctx, id)
}

func (r *racingValidatorRepo) GetByPublicKey(ctx context.Context, key string) (*validator.Validator, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, postgres.ErrNotFound
	}
	return r.inner.GetByPublicKey(ctx, key)
}

func (r *racingValidatorRepo) Credit(ctx context.Context, id, amount int64) (int64, error) {
	return r.inner.Credit(ctx, id, amount)
}

func TestRegistryRemoveDropsOnlyThatConn(t *testing.T) {
	repo := &fakeValidatorRepo{}
	reg := newTestRegistry(t, repo)
	c1 := &fakeConn{}
	c2 := &fakeConn{}

	_, err := reg.RegisterOrGet(context.Background(), "pk-1", "", c1)
	require.NoError(t, err)
	_, err = reg.RegisterOrGet(context.Background(), "pk-2", "", c2)
	require.NoError(t, err)

	reg.Remove(c1)

	peers := reg.Snapshot()
	require.Len(t, peers, 1)
	require.Equal(t, "pk-2", peers[0].PublicKey)

	// Removing an unknown conn is a no-op.
	reg.Remove(&fakeConn{})
	require.Len(t, reg.Snapshot(), 1)
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	repo := &fakeValidatorRepo{}
	reg := newTestRegistry(t, repo)
	c := &fakeConn{}
	_, err := reg.RegisterOrGet(context.Background(), "pk-1", "", c)
	require.NoError(t, err)

	snap := reg.Snapshot()
	reg.Remove(c)
	require.Len(t, snap, 1, "snapshot must not observe later mutation")
}
