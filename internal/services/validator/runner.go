package validator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/obs/retry"
	"github.com/vigilnet/vigil/internal/protocol"
	"github.com/vigilnet/vigil/internal/sig"
)

// Runner keeps one connection to the hub: it signs up with the validator's
// ed25519 identity, then serves probe requests until the channel drops, and
// reconnects with backoff.
type Runner struct {
	log    *zap.Logger
	signer *sig.Signer
	probe  *Probe

	hubURL string
	ip     string

	validatorID atomic.Int64

	// signup continuations, single-fire, keyed by callback id
	mu      sync.Mutex
	pending map[string]chan protocol.SignupReply

	mProbes     *prometheus.CounterVec
	mLatency    prometheus.Histogram
	mReconnects prometheus.Counter
}

func NewRunner(log *zap.Logger, signer *sig.Signer, probe *Probe, hubURL, ip string) *Runner {
	return &Runner{
		log:     log.With(zap.String("component", "validator.runner")),
		signer:  signer,
		probe:   probe,
		hubURL:  hubURL,
		ip:      ip,
		pending: make(map[string]chan protocol.SignupReply),
		mProbes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "validator_probes_total", Help: "Probes performed, by result",
		}, []string{"status"}),
		mLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "validator_probe_latency_seconds", Help: "Probe latency",
			Buckets: prometheus.DefBuckets,
		}),
		mReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "validator_reconnects_total", Help: "Reconnects to the hub",
		}),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	backoff := retry.ExpoJitter{Base: time.Second, Max: time.Minute, Jitter: 0.2}
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.session(ctx)
		if errors.Is(err, context.Canceled) {
			return err
		}
		r.mReconnects.Inc()
		attempt++
		wait := backoff.Next(attempt)
		r.log.Warn("hub session ended; reconnecting",
			zap.Error(err),
			zap.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *Runner) session(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, r.hubURL, nil)
	if err != nil {
		return err
	}
	conn := newHubConn(ws)
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if err := r.signup(ctx, conn); err != nil {
		return err
	}
	r.log.Info("signed up", zap.Int64("validator_id", r.validatorID.Load()))

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := protocol.DecodeFromHub(raw)
		if err != nil {
			r.log.Warn("undecodable hub message", zap.Error(err))
			continue
		}
		switch {
		case msg.SignupReply != nil:
			r.resolveSignup(*msg.SignupReply)
		case msg.Validate != nil:
			go r.handleValidate(ctx, conn, msg.Validate)
		default:
			r.log.Warn("unknown message type from hub", zap.String("type", msg.Type))
		}
	}
}

func (r *Runner) signup(ctx context.Context, conn *hubConn) error {
	cb := uuid.NewString()
	ch := make(chan protocol.SignupReply, 1)
	r.mu.Lock()
	r.pending[cb] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, cb)
		r.mu.Unlock()
	}()

	pub := r.signer.PublicKey()
	if err := conn.Send(protocol.TypeSignup, protocol.SignupRequest{
		IP:            r.ip,
		PublicKey:     pub,
		SignedMessage: r.signer.Sign(sig.SignupChallenge(cb, pub)),
		CallbackID:    cb,
	}); err != nil {
		return err
	}

	// The read loop has not started yet; consume frames here until the
	// signup reply for our callback id arrives.
	ws := conn.ws
	deadline := time.Now().Add(15 * time.Second)
	_ = ws.SetReadDeadline(deadline)
	defer ws.SetReadDeadline(time.Time{})

	for {
		select {
		case reply := <-ch:
			r.validatorID.Store(reply.ValidatorID)
			return nil
		default:
		}

		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := protocol.DecodeFromHub(raw)
		if err != nil {
			r.log.Warn("undecodable hub message", zap.Error(err))
			continue
		}
		if msg.SignupReply != nil {
			r.resolveSignup(*msg.SignupReply)
			continue
		}
		// Anything else this early is unexpected; drop it.
		r.log.Debug("message before signup completed", zap.String("type", msg.Type))
	}
}

// resolveSignup delivers the reply to its registered continuation exactly
// once; replies for unknown callback ids are discarded.
func (r *Runner) resolveSignup(reply protocol.SignupReply) {
	r.mu.Lock()
	ch, ok := r.pending[reply.CallbackID]
	if ok {
		delete(r.pending, reply.CallbackID)
	}
	r.mu.Unlock()
	if !ok {
		r.log.Debug("signup reply for unknown callback", zap.String("callback_id", reply.CallbackID))
		return
	}
	ch <- reply
}

func (r *Runner) handleValidate(ctx context.Context, conn *hubConn, req *protocol.ValidateRequest) {
	status, latencyMs := r.probe.Do(ctx, req.URL)
	r.mProbes.WithLabelValues(string(status)).Inc()
	r.mLatency.Observe(float64(latencyMs) / 1000)

	reply := protocol.ValidateReply{
		CallbackID:    req.CallbackID,
		Status:        string(status),
		Latency:       latencyMs,
		TargetID:      req.TargetID,
		ValidatorID:   r.validatorID.Load(),
		SignedMessage: r.signer.Sign(sig.ReplyChallenge(req.CallbackID)),
	}
	if err := conn.Send(protocol.TypeValidate, reply); err != nil {
		r.log.Warn("send check reply",
			zap.String("callback_id", req.CallbackID),
			zap.Error(err),
		)
		return
	}
	r.log.Debug("check replied",
		zap.String("url", req.URL),
		zap.String("status", string(status)),
		zap.Int64("latency_ms", latencyMs),
	)
}

// hubConn serializes concurrent writes from probe goroutines.
type hubConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newHubConn(ws *websocket.Conn) *hubConn { return &hubConn{ws: ws} }

func (c *hubConn) Send(msgType string, payload any) error {
	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *hubConn) Close() error { return c.ws.Close() }
