package hub

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/domain/events"
	"github.com/vigilnet/vigil/internal/domain/notification"
	"github.com/vigilnet/vigil/internal/domain/owner"
	"github.com/vigilnet/vigil/internal/domain/target"
	"github.com/vigilnet/vigil/internal/domain/tick"
	"github.com/vigilnet/vigil/internal/obs/retry"
	"github.com/vigilnet/vigil/internal/repository/postgres"
)

// AlertGate decides whether a just-persisted Bad tick should page the
// target's owner. Gate failures never touch the persisted tick: a failed
// handoff is logged and swallowed, and last_alert_at moves only after the
// handoff succeeded.
type AlertGate struct {
	log     *zap.Logger
	targets target.Repo
	owners  owner.Repo
	ticks   tick.Repo
	out     events.AlertEvents
	clock   notification.Clock

	consecutiveRequired int
	lookbackWindow      int
	pubPolicy           retry.Policy

	mAlerts  prometheus.Counter
	mSkipped *prometheus.CounterVec
}

func NewAlertGate(
	log *zap.Logger,
	targets target.Repo,
	owners owner.Repo,
	ticks tick.Repo,
	out events.AlertEvents,
	clock notification.Clock,
	consecutiveRequired, lookbackWindow int,
) *AlertGate {
	l := log.With(zap.String("component", "hub.alertgate"))
	return &AlertGate{
		log:                 l,
		targets:             targets,
		owners:              owners,
		ticks:               ticks,
		out:                 out,
		clock:               clock,
		consecutiveRequired: consecutiveRequired,
		lookbackWindow:      lookbackWindow,
		pubPolicy:           retry.PublishPolicy(l),
		mAlerts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_alerts_published_total", Help: "Down alerts handed off",
		}),
		mSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_alerts_skipped_total", Help: "Alert decisions that skipped",
		}, []string{"reason"}),
	}
}

func (g *AlertGate) Consider(ctx context.Context, rd Round, tickID int64) {
	t, err := g.targets.GetByID(ctx, rd.TargetID)
	if err != nil {
		g.mSkipped.WithLabelValues("target_lookup").Inc()
		g.log.Warn("alert target lookup", zap.Int64("target_id", rd.TargetID), zap.Error(err))
		return
	}

	o, err := g.owners.GetByID(ctx, t.OwnerID)
	if err != nil {
		if !errors.Is(err, postgres.ErrNotFound) {
			g.log.Warn("alert owner lookup", zap.Int64("owner_id", t.OwnerID), zap.Error(err))
		}
		g.mSkipped.WithLabelValues("no_owner").Inc()
		return
	}
	if o.Email == "" {
		g.mSkipped.WithLabelValues("no_email").Inc()
		return
	}

	if g.consecutiveRequired > 1 && !g.streakBad(ctx, t.ID) {
		g.mSkipped.WithLabelValues("streak").Inc()
		return
	}

	now := g.clock.Now().UTC()
	if t.LastAlertAt != nil {
		cooldown := time.Duration(t.AlertCooldownMinutes) * time.Minute
		if now.Sub(*t.LastAlertAt) < cooldown {
			g.mSkipped.WithLabelValues("cooldown").Inc()
			g.log.Debug("alert suppressed by cooldown",
				zap.Int64("target_id", t.ID),
				zap.Time("last_alert_at", *t.LastAlertAt),
			)
			return
		}
	}

	ev := events.DownAlert{
		TargetID: t.ID,
		OwnerID:  t.OwnerID,
		URL:      t.URL,
		TickID:   tickID,
		At:       now,
	}
	if err := retry.Do(ctx, func() error { return g.out.PublishDownAlert(ctx, ev) }, g.pubPolicy); err != nil {
		g.mSkipped.WithLabelValues("handoff").Inc()
		g.log.Warn("alert handoff failed", zap.Int64("target_id", t.ID), zap.Error(err))
		return
	}
	g.mAlerts.Inc()

	if err := g.targets.SetLastAlert(ctx, t.ID, now); err != nil {
		g.log.Warn("update last_alert_at", zap.Int64("target_id", t.ID), zap.Error(err))
	}
	g.log.Info("down alert published", zap.Int64("target_id", t.ID), zap.String("url", t.URL))
}

// streakBad requires the most recent consecutiveRequired linked ticks to all
// be Bad. Strictly the newest N: a single Good inside the streak resets it,
// whatever else sits in the lookback window.
func (g *AlertGate) streakBad(ctx context.Context, targetID int64) bool {
	limit := g.consecutiveRequired
	if g.lookbackWindow > limit {
		limit = g.lookbackWindow
	}
	recent, err := g.ticks.ListByTarget(ctx, targetID, limit)
	if err != nil {
		g.log.Warn("alert history lookup", zap.Int64("target_id", targetID), zap.Error(err))
		return false
	}
	if len(recent) < g.consecutiveRequired {
		return false
	}
	for _, t := range recent[:g.consecutiveRequired] {
		if t.Status != tick.StatusBad {
			return false
		}
	}
	return true
}
