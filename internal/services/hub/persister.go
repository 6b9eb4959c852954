package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/domain/notification"
	"github.com/vigilnet/vigil/internal/domain/target"
	"github.com/vigilnet/vigil/internal/domain/tick"
	"github.com/vigilnet/vigil/internal/domain/validator"
	"github.com/vigilnet/vigil/internal/obs"
	"github.com/vigilnet/vigil/internal/repository/postgres"
)

// Outcome reports which persistence path executed, so callers and tests can
// assert on it instead of inferring it from logs.
type Outcome int

const (
	OutcomeCommitted Outcome = iota
	OutcomeFallbackPartial
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeFallbackPartial:
		return "fallback_partial"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

type PersistResult struct {
	Outcome  Outcome
	TickID   int64
	Linked   bool
	Credited bool
	Err      error
}

var (
	errOwnershipChanged = errors.New("target missing or ownership changed")
	errUnknownValidator = errors.New("validator record missing")
)

// Persister records a verified check result and credits the reporting peer.
// Tier one runs everything in a single transaction; any transaction error,
// including an ownership-condition miss, degrades to non-transactional
// best-effort writes. The fallback trades atomicity for availability: it can
// leave the tick orphaned or the payout uncredited, and that divergence is
// logged, never auto-healed.
type Persister struct {
	log        *zap.Logger
	tx         postgres.Transactor
	ticks      tick.Repo
	targets    target.Repo
	validators validator.Repo
	clock      notification.Clock
	reward     int64

	mOutcome *prometheus.CounterVec
}

func NewPersister(
	log *zap.Logger,
	tx postgres.Transactor,
	ticks tick.Repo,
	targets target.Repo,
	validators validator.Repo,
	clock notification.Clock,
	reward int64,
) *Persister {
	return &Persister{
		log:        log.With(zap.String("component", "hub.persister")),
		tx:         tx,
		ticks:      ticks,
		targets:    targets,
		validators: validators,
		clock:      clock,
		reward:     reward,
		mOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_persist_outcomes_total", Help: "Persist results by path",
		}, []string{"outcome"}),
	}
}

func (p *Persister) Persist(ctx context.Context, rd Round, status tick.Status, latencyMs int64) PersistResult {
	tr := otel.Tracer("hub.persister")
	ctx, span := tr.Start(ctx, "hub.persist",
		trace.WithAttributes(
			attribute.Int64("target.id", rd.TargetID),
			attribute.Int64("validator.id", rd.ValidatorID),
			attribute.String("tick.status", string(status)),
		),
	)
	defer span.End()

	res := p.persist(ctx, rd, status, latencyMs)
	p.mOutcome.WithLabelValues(res.Outcome.String()).Inc()
	span.SetAttributes(attribute.String("persist.outcome", res.Outcome.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	return res
}

func (p *Persister) persist(ctx context.Context, rd Round, status tick.Status, latencyMs int64) PersistResult {
	rec := &tick.Tick{
		TargetID:    rd.TargetID,
		ValidatorID: rd.ValidatorID,
		Status:      status,
		LatencyMs:   latencyMs,
		ObservedAt:  p.clock.Now().UTC(),
	}

	txErr := p.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := p.ticks.Insert(txCtx, rec); err != nil {
			return fmt.Errorf("insert tick: %w", err)
		}
		n, err := p.targets.LinkTick(txCtx, rd.TargetID, rd.OwnerID, rec.ID)
		if err != nil {
			return fmt.Errorf("link tick: %w", err)
		}
		if n == 0 {
			return errOwnershipChanged
		}
		n, err = p.validators.Credit(txCtx, rd.ValidatorID, p.reward)
		if err != nil {
			return fmt.Errorf("credit payout: %w", err)
		}
		if n == 0 {
			return errUnknownValidator
		}
		return nil
	})
	if txErr == nil {
		return PersistResult{Outcome: OutcomeCommitted, TickID: rec.ID, Linked: true, Credited: true}
	}

	obs.WithTrace(ctx, p.log).Warn("transactional persist failed; degrading to non-transactional writes",
		zap.Int64("target_id", rd.TargetID),
		zap.Int64("validator_id", rd.ValidatorID),
		zap.Error(txErr),
	)

	return p.fallback(ctx, rd, status, latencyMs)
}

// fallback writes each piece separately. The tick insert commits first, so a
// later ownership or payout miss leaves durable divergence rather than
// rolling anything back.
func (p *Persister) fallback(ctx context.Context, rd Round, status tick.Status, latencyMs int64) PersistResult {
	log := obs.WithTrace(ctx, p.log)

	rec := &tick.Tick{
		TargetID:    rd.TargetID,
		ValidatorID: rd.ValidatorID,
		Status:      status,
		LatencyMs:   latencyMs,
		ObservedAt:  p.clock.Now().UTC(),
	}
	if err := p.ticks.Insert(ctx, rec); err != nil {
		return PersistResult{Outcome: OutcomeFailed, Err: fmt.Errorf("fallback insert tick: %w", err)}
	}

	res := PersistResult{Outcome: OutcomeFallbackPartial, TickID: rec.ID}

	n, err := p.targets.LinkTick(ctx, rd.TargetID, rd.OwnerID, rec.ID)
	switch {
	case err != nil:
		log.Warn("fallback link failed; tick is orphaned", zap.Int64("tick_id", rec.ID), zap.Error(err))
	case n == 0:
		log.Warn("ownership condition failed; tick is orphaned",
			zap.Int64("tick_id", rec.ID),
			zap.Int64("target_id", rd.TargetID),
			zap.Int64("owner_id", rd.OwnerID),
		)
	default:
		res.Linked = true
	}

	n, err = p.validators.Credit(ctx, rd.ValidatorID, p.reward)
	switch {
	case err != nil:
		log.Warn("fallback credit failed; payout not applied", zap.Int64("validator_id", rd.ValidatorID), zap.Error(err))
	case n == 0:
		log.Warn("validator record missing; payout not applied", zap.Int64("validator_id", rd.ValidatorID))
	default:
		res.Credited = true
	}

	return res
}
