package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vigilnet/vigil/internal/domain/target"
	"github.com/vigilnet/vigil/internal/protocol"
)

func TestDispatchFansOutTargetsByPeers(t *testing.T) {
	targets := &fakeTargetRepo{enabled: []*target.Target{testTarget(1, 10), testTarget(2, 20)}}
	repo := &fakeValidatorRepo{}
	reg := newTestRegistry(t, repo)
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	_, err := reg.RegisterOrGet(context.Background(), "pk-1", "", c1)
	require.NoError(t, err)
	_, err = reg.RegisterOrGet(context.Background(), "pk-2", "", c2)
	require.NoError(t, err)

	rounds := NewRoundTable()
	d := newTestDispatcher(t, targets, reg, rounds, time.Minute, 0)

	d.tick(context.Background())

	require.Equal(t, 4, rounds.Len(), "2 targets x 2 peers")
	require.Equal(t, 2, c1.sentCount())
	require.Equal(t, 2, c2.sentCount())

	frame := c1.sent[0]
	require.Equal(t, protocol.TypeValidate, frame.msgType)
	req, ok := frame.payload.(protocol.ValidateRequest)
	require.True(t, ok)
	require.NotEmpty(t, req.CallbackID)
	require.NotEmpty(t, req.URL)

	// Every dispatched callback id has a matching pending round.
	rd, ok := rounds.Take(req.CallbackID)
	require.True(t, ok)
	require.Equal(t, req.TargetID, rd.TargetID)
	require.Equal(t, req.URL, rd.URL)
	require.Equal(t, "pk-1", rd.PublicKey)
}

func TestDispatchWithNoPeersDoesNothing(t *testing.T) {
	targets := &fakeTargetRepo{enabled: []*target.Target{testTarget(1, 10)}}
	reg := newTestRegistry(t, &fakeValidatorRepo{})
	rounds := NewRoundTable()
	d := newTestDispatcher(t, targets, reg, rounds, time.Minute, 0)

	d.tick(context.Background())
	require.Zero(t, rounds.Len())
}

func TestDispatchSendFailureLeavesRoundPending(t *testing.T) {
	targets := &fakeTargetRepo{enabled: []*target.Target{testTarget(1, 10)}}
	reg := newTestRegistry(t, &fakeValidatorRepo{})
	dead := &fakeConn{sendErr: errors.New("broken pipe")}
	_, err := reg.RegisterOrGet(context.Background(), "pk-1", "", dead)
	require.NoError(t, err)

	rounds := NewRoundTable()
	d := newTestDispatcher(t, targets, reg, rounds, time.Minute, 0)

	d.tick(context.Background())

	// The round was recorded before the send attempt and stays in the table.
	require.Equal(t, 1, rounds.Len())
	require.Zero(t, dead.sentCount())
}

func TestDispatchEvictsExpiredRounds(t *testing.T) {
	targets := &fakeTargetRepo{}
	reg := newTestRegistry(t, &fakeValidatorRepo{})
	rounds := NewRoundTable()
	rounds.Put("stale", Round{IssuedAt: time.Now().Add(-10 * time.Minute)})
	rounds.Put("fresh", Round{IssuedAt: time.Now()})

	d := newTestDispatcher(t, targets, reg, rounds, time.Minute, 5*time.Minute)
	d.tick(context.Background())

	require.Equal(t, 1, rounds.Len())
	_, ok := rounds.Take("fresh")
	require.True(t, ok)
}

func TestDispatchTTLDisabledKeepsAbandonedRounds(t *testing.T) {
	targets := &fakeTargetRepo{}
	reg := newTestRegistry(t, &fakeValidatorRepo{})
	rounds := NewRoundTable()
	rounds.Put("stale", Round{IssuedAt: time.Now().Add(-24 * time.Hour)})

	d := newTestDispatcher(t, targets, reg, rounds, time.Minute, 0)
	d.tick(context.Background())

	require.Equal(t, 1, rounds.Len())
}
