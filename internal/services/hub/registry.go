package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/domain/validator"
	"github.com/vigilnet/vigil/internal/repository/postgres"
)

// Conn is the hub's handle on one peer channel. Implementations must be safe
// for concurrent Send calls.
type Conn interface {
	Send(msgType string, payload any) error
	Close() error
}

// Peer is one currently connected validator.
type Peer struct {
	ValidatorID int64
	PublicKey   string
	Conn        Conn
}

// Registry tracks connected peers. Persisted identity is looked up by public
// key, so reconnecting peers keep their validator id; the in-memory set is
// mutated on connect and on channel close.
type Registry struct {
	log  *zap.Logger
	repo validator.Repo

	mu    sync.Mutex
	peers []*Peer

	mConnected prometheus.Gauge
}

func NewRegistry(log *zap.Logger, repo validator.Repo) *Registry {
	return &Registry{
		log:  log.With(zap.String("component", "hub.registry")),
		repo: repo,
		mConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hub_peers_connected", Help: "Validator peers currently connected",
		}),
	}
}

func (r *Registry) RegisterOrGet(ctx context.Context, publicKey, ip string, conn Conn) (*Peer, error) {
	v, err := r.repo.GetByPublicKey(ctx, publicKey)
	if errors.Is(err, postgres.ErrNotFound) {
		v = &validator.Validator{PublicKey: publicKey, IP: ip}
		if cerr := r.repo.Create(ctx, v); cerr != nil {
			// Lost a race against a concurrent signup with the same key.
			if errors.Is(cerr, postgres.ErrConflict) {
				v, err = r.repo.GetByPublicKey(ctx, publicKey)
			} else {
				return nil, fmt.Errorf("create validator: %w", cerr)
			}
		} else {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup validator: %w", err)
	}

	p := &Peer{ValidatorID: v.ID, PublicKey: publicKey, Conn: conn}

	r.mu.Lock()
	r.peers = append(r.peers, p)
	n := len(r.peers)
	r.mu.Unlock()
	r.mConnected.Set(float64(n))

	r.log.Info("peer registered",
		zap.Int64("validator_id", v.ID),
		zap.String("public_key", publicKey),
		zap.Int("connected", n),
	)
	return p, nil
}

// Remove drops every peer entry bound to conn. O(n) over the connected set.
func (r *Registry) Remove(conn Conn) {
	r.mu.Lock()
	kept := r.peers[:0]
	removed := 0
	for _, p := range r.peers {
		if p.Conn == conn {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	r.peers = kept
	n := len(r.peers)
	r.mu.Unlock()

	if removed > 0 {
		r.mConnected.Set(float64(n))
		r.log.Info("peer removed", zap.Int("removed", removed), zap.Int("connected", n))
	}
}

// Snapshot copies the connected set for dispatch iteration.
func (r *Registry) Snapshot() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Peer, len(r.peers))
	copy(out, r.peers)
	return out
}
