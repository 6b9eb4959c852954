package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vigilnet/vigil/internal/domain/tick"
)

func recentTicks(statuses ...tick.Status) []*tick.Tick {
	out := make([]*tick.Tick, 0, len(statuses))
	for i, st := range statuses {
		out = append(out, &tick.Tick{ID: int64(100 - i), TargetID: 7, Status: st})
	}
	return out
}

type gateFixture struct {
	targets *fakeTargetRepo
	owners  *fakeOwnerRepo
	ticks   *fakeTickRepo
	out     *fakeAlertEvents
	clock   *fakeClock
	gate    *AlertGate
	round   Round
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	targets := &fakeTargetRepo{linkN: 1}
	require.NoError(t, targets.Create(context.Background(), testTarget(7, 3)))
	owners := &fakeOwnerRepo{}
	require.NoError(t, owners.Create(context.Background(), testOwner(3, "owner@example.com")))
	ticks := &fakeTickRepo{}
	out := &fakeAlertEvents{}
	clock := &fakeClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}

	return &gateFixture{
		targets: targets,
		owners:  owners,
		ticks:   ticks,
		out:     out,
		clock:   clock,
		gate:    newTestAlertGate(t, targets, owners, ticks, out, clock, 3, 5),
		round:   Round{TargetID: 7, OwnerID: 3, URL: "https://example.com"},
	}
}

func TestGateAlertsOnConsecutiveBadStreak(t *testing.T) {
	f := newGateFixture(t)
	f.ticks.recent = recentTicks(tick.StatusBad, tick.StatusBad, tick.StatusBad, tick.StatusGood)

	f.gate.Consider(context.Background(), f.round, 100)

	require.Equal(t, 1, f.out.count())
	ev := f.out.published[0]
	require.Equal(t, int64(7), ev.TargetID)
	require.Equal(t, int64(3), ev.OwnerID)
	require.Equal(t, "https://example.com", ev.URL)
	require.Equal(t, int64(100), ev.TickID)

	// Handoff succeeded, so the cooldown clock moved.
	require.Equal(t, f.clock.Now(), f.targets.lastAlert[7])
}

func TestGateGoodInsideStreakResets(t *testing.T) {
	f := newGateFixture(t)
	f.ticks.recent = recentTicks(tick.StatusBad, tick.StatusBad, tick.StatusGood, tick.StatusBad, tick.StatusBad)

	f.gate.Consider(context.Background(), f.round, 100)

	require.Zero(t, f.out.count())
	require.Empty(t, f.targets.lastAlert)
}

func TestGateTooFewTicks(t *testing.T) {
	f := newGateFixture(t)
	f.ticks.recent = recentTicks(tick.StatusBad, tick.StatusBad)

	f.gate.Consider(context.Background(), f.round, 100)
	require.Zero(t, f.out.count())
}

func TestGateCooldownSuppressesRepeat(t *testing.T) {
	f := newGateFixture(t)
	f.ticks.recent = recentTicks(tick.StatusBad, tick.StatusBad, tick.StatusBad)

	// Alerted five minutes ago with a fifteen-minute cooldown.
	last := f.clock.Now().Add(-5 * time.Minute)
	f.targets.byID[7].LastAlertAt = &last

	f.gate.Consider(context.Background(), f.round, 100)
	require.Zero(t, f.out.count())
}

func TestGateAlertsAgainAfterCooldown(t *testing.T) {
	f := newGateFixture(t)
	f.ticks.recent = recentTicks(tick.StatusBad, tick.StatusBad, tick.StatusBad)

	last := f.clock.Now().Add(-16 * time.Minute)
	f.targets.byID[7].LastAlertAt = &last

	f.gate.Consider(context.Background(), f.round, 100)
	require.Equal(t, 1, f.out.count())
}

func TestGateOwnerWithoutEmailSkips(t *testing.T) {
	f := newGateFixture(t)
	f.ticks.recent = recentTicks(tick.StatusBad, tick.StatusBad, tick.StatusBad)
	f.owners.owners[3].Email = ""

	f.gate.Consider(context.Background(), f.round, 100)
	require.Zero(t, f.out.count())
}

func TestGateMissingOwnerSkips(t *testing.T) {
	f := newGateFixture(t)
	f.ticks.recent = recentTicks(tick.StatusBad, tick.StatusBad, tick.StatusBad)
	delete(f.owners.owners, 3)

	f.gate.Consider(context.Background(), f.round, 100)
	require.Zero(t, f.out.count())
}

func TestGateFailedHandoffLeavesCooldownUntouched(t *testing.T) {
	f := newGateFixture(t)
	f.ticks.recent = recentTicks(tick.StatusBad, tick.StatusBad, tick.StatusBad)
	f.out.publishErr = errors.New("broker unavailable")

	f.gate.Consider(context.Background(), f.round, 100)

	require.Zero(t, f.out.count())
	require.Empty(t, f.targets.lastAlert, "last_alert_at must only move after a successful handoff")

	// Broker recovers; the very next Bad tick may alert because nothing
	// started a cooldown.
	f.out.publishErr = nil
	f.gate.Consider(context.Background(), f.round, 101)
	require.Equal(t, 1, f.out.count())
}
