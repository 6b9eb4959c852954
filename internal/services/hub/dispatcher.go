package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/domain/target"
	"github.com/vigilnet/vigil/internal/protocol"
)

// Dispatcher fans a check request out to every connected peer for every
// enabled target on a fixed interval. There is no backpressure: a slow peer
// accumulates pending rounds, bounded only by the optional round TTL.
type Dispatcher struct {
	log      *zap.Logger
	targets  target.Repo
	registry *Registry
	rounds   *RoundTable

	interval time.Duration
	roundTTL time.Duration

	mDispatched prometheus.Counter
	mSendErr    prometheus.Counter
	mEvicted    prometheus.Counter
	mPending    prometheus.Gauge
	mTickDur    prometheus.Histogram
}

func NewDispatcher(log *zap.Logger, targets target.Repo, registry *Registry, rounds *RoundTable, interval, roundTTL time.Duration) *Dispatcher {
	return &Dispatcher{
		log:      log.With(zap.String("component", "hub.dispatcher")),
		targets:  targets,
		registry: registry,
		rounds:   rounds,
		interval: interval,
		roundTTL: roundTTL,
		mDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_rounds_dispatched_total", Help: "Check requests sent to peers",
		}),
		mSendErr: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_dispatch_send_errors_total", Help: "Failed sends to peer channels",
		}),
		mEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_rounds_evicted_total", Help: "Rounds evicted by TTL",
		}),
		mPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hub_rounds_pending", Help: "Rounds awaiting a reply",
		}),
		mTickDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "hub_dispatch_duration_seconds", Help: "Dispatch tick duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	start := time.Now()
	defer func() { d.mTickDur.Observe(time.Since(start).Seconds()) }()

	if d.roundTTL > 0 {
		if n := d.rounds.EvictBefore(start.Add(-d.roundTTL)); n > 0 {
			d.mEvicted.Add(float64(n))
			d.log.Debug("evicted abandoned rounds", zap.Int("count", n))
		}
	}

	tr := otel.Tracer("hub.dispatcher")
	ctxTick, span := tr.Start(ctx, "hub.dispatch")
	defer span.End()

	targets, err := d.targets.ListEnabled(ctxTick)
	if err != nil {
		span.RecordError(err)
		d.log.Warn("list targets", zap.Error(err))
		return
	}
	peers := d.registry.Snapshot()
	span.SetAttributes(
		attribute.Int("targets", len(targets)),
		attribute.Int("peers", len(peers)),
	)
	if len(targets) == 0 || len(peers) == 0 {
		d.mPending.Set(float64(d.rounds.Len()))
		return
	}

	sent := 0
	for _, t := range targets {
		for _, p := range peers {
			id := uuid.NewString()
			d.rounds.Put(id, Round{
				TargetID:    t.ID,
				OwnerID:     t.OwnerID,
				URL:         t.URL,
				ValidatorID: p.ValidatorID,
				PublicKey:   p.PublicKey,
				IssuedAt:    start,
			})
			if err := p.Conn.Send(protocol.TypeValidate, protocol.ValidateRequest{
				URL:        t.URL,
				CallbackID: id,
				TargetID:   t.ID,
			}); err != nil {
				// The round stays pending; a reply can never arrive, so it is
				// garbage until TTL eviction or restart.
				d.mSendErr.Inc()
				d.log.Warn("send check request",
					zap.Int64("target_id", t.ID),
					zap.Int64("validator_id", p.ValidatorID),
					zap.Error(err),
				)
				continue
			}
			sent++
		}
	}
	d.mDispatched.Add(float64(sent))
	d.mPending.Set(float64(d.rounds.Len()))
	if sent > 0 {
		d.log.Debug("dispatched rounds",
			zap.Int("sent", sent),
			zap.Int("targets", len(targets)),
			zap.Int("peers", len(peers)),
		)
	}
}
