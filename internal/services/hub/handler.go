package hub

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/domain/tick"
	"github.com/vigilnet/vigil/internal/protocol"
	"github.com/vigilnet/vigil/internal/sig"
)

// ReplyHandler is the single dispatch point for check replies. A reply either
// consumes its round exactly once or is discarded; failures inside one
// round's handling never touch other rounds or peers.
type ReplyHandler struct {
	log       *zap.Logger
	rounds    *RoundTable
	verifier  *sig.Verifier
	persister *Persister
	gate      *AlertGate

	mMatched prometheus.Counter
	mUnknown prometheus.Counter
	mBadSig  prometheus.Counter
	mInvalid prometheus.Counter
}

func NewReplyHandler(log *zap.Logger, rounds *RoundTable, verifier *sig.Verifier, persister *Persister, gate *AlertGate) *ReplyHandler {
	return &ReplyHandler{
		log:       log.With(zap.String("component", "hub.replies")),
		rounds:    rounds,
		verifier:  verifier,
		persister: persister,
		gate:      gate,
		mMatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_replies_matched_total", Help: "Replies matched to a pending round",
		}),
		mUnknown: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_replies_unknown_total", Help: "Replies for unknown or consumed rounds",
		}),
		mBadSig: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_replies_bad_signature_total", Help: "Replies with failed signature verification",
		}),
		mInvalid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_replies_invalid_total", Help: "Replies with malformed fields",
		}),
	}
}

// HandleValidateReply correlates, authenticates and persists one reply.
// Persistence runs on its own goroutine so one peer's slow DB write cannot
// stall message delivery for other peers, and survives the peer's channel
// closing mid-write.
func (h *ReplyHandler) HandleValidateReply(ctx context.Context, r *protocol.ValidateReply) {
	st := tick.Status(r.Status)
	if !st.Valid() || r.Latency < 0 {
		h.mInvalid.Inc()
		h.log.Warn("malformed check reply",
			zap.String("callback_id", r.CallbackID),
			zap.String("status", r.Status),
			zap.Int64("latency", r.Latency),
		)
		return
	}

	rd, ok := h.rounds.Take(r.CallbackID)
	if !ok {
		// Duplicate, late, or never dispatched. Nothing to invoke.
		h.mUnknown.Inc()
		h.log.Debug("reply for unknown round", zap.String("callback_id", r.CallbackID))
		return
	}

	// The challenge is rebuilt locally and checked against the public key
	// captured at dispatch. A forged reply burns the round: dropping it here
	// bounds duplicate attempts against the same round id.
	if !h.verifier.Verify(sig.ReplyChallenge(r.CallbackID), rd.PublicKey, r.SignedMessage) {
		h.mBadSig.Inc()
		h.log.Warn("check reply failed signature verification; round dropped",
			zap.String("callback_id", r.CallbackID),
			zap.Int64("validator_id", rd.ValidatorID),
		)
		return
	}

	h.mMatched.Inc()
	go h.complete(context.WithoutCancel(ctx), rd, st, r.Latency)
}

func (h *ReplyHandler) complete(ctx context.Context, rd Round, st tick.Status, latencyMs int64) {
	res := h.persister.Persist(ctx, rd, st, latencyMs)
	switch res.Outcome {
	case OutcomeFailed:
		// The round is already consumed; this observation is permanently lost.
		h.log.Error("persist failed; check observation lost",
			zap.Int64("target_id", rd.TargetID),
			zap.Int64("validator_id", rd.ValidatorID),
			zap.Error(res.Err),
		)
		return
	case OutcomeFallbackPartial:
		h.log.Warn("persisted via fallback path",
			zap.Int64("tick_id", res.TickID),
			zap.Bool("linked", res.Linked),
			zap.Bool("credited", res.Credited),
		)
	default:
		h.log.Debug("persisted",
			zap.Int64("tick_id", res.TickID),
			zap.Int64("target_id", rd.TargetID),
			zap.String("status", string(st)),
			zap.Int64("latency_ms", latencyMs),
		)
	}

	if st == tick.StatusBad && h.gate != nil {
		h.gate.Consider(ctx, rd, res.TickID)
	}
}
