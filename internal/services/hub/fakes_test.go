package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/vigilnet/vigil/internal/domain/events"
	"github.com/vigilnet/vigil/internal/domain/notification"
	"github.com/vigilnet/vigil/internal/domain/owner"
	"github.com/vigilnet/vigil/internal/domain/target"
	"github.com/vigilnet/vigil/internal/domain/tick"
	"github.com/vigilnet/vigil/internal/domain/validator"
	"github.com/vigilnet/vigil/internal/obs/retry"
	"github.com/vigilnet/vigil/internal/repository/postgres"
	"github.com/vigilnet/vigil/internal/sig"
)

// Components are built directly here instead of through their constructors:
// the constructors register their metrics with the default prometheus
// registerer, which panics on the second test that builds the same component.

func newTestPersister(
	t *testing.T,
	tx postgres.Transactor,
	ticks tick.Repo,
	targets target.Repo,
	validators validator.Repo,
	clock notification.Clock,
	reward int64,
) *Persister {
	t.Helper()
	return &Persister{
		log:        zaptest.NewLogger(t),
		tx:         tx,
		ticks:      ticks,
		targets:    targets,
		validators: validators,
		clock:      clock,
		reward:     reward,
		mOutcome:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_persist_outcomes"}, []string{"outcome"}),
	}
}

func newTestRegistry(t *testing.T, repo validator.Repo) *Registry {
	t.Helper()
	return &Registry{
		log:        zaptest.NewLogger(t),
		repo:       repo,
		mConnected: prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_peers_connected"}),
	}
}

func newTestDispatcher(t *testing.T, targets target.Repo, registry *Registry, rounds *RoundTable, interval, ttl time.Duration) *Dispatcher {
	t.Helper()
	return &Dispatcher{
		log:         zaptest.NewLogger(t),
		targets:     targets,
		registry:    registry,
		rounds:      rounds,
		interval:    interval,
		roundTTL:    ttl,
		mDispatched: prometheus.NewCounter(prometheus.CounterOpts{Name: "test_rounds_dispatched"}),
		mSendErr:    prometheus.NewCounter(prometheus.CounterOpts{Name: "test_dispatch_send_errors"}),
		mEvicted:    prometheus.NewCounter(prometheus.CounterOpts{Name: "test_rounds_evicted"}),
		mPending:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_rounds_pending"}),
		mTickDur:    prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_dispatch_duration"}),
	}
}

func newTestReplyHandler(t *testing.T, rounds *RoundTable, verifier *sig.Verifier, persister *Persister, gate *AlertGate) *ReplyHandler {
	t.Helper()
	return &ReplyHandler{
		log:       zaptest.NewLogger(t),
		rounds:    rounds,
		verifier:  verifier,
		persister: persister,
		gate:      gate,
		mMatched:  prometheus.NewCounter(prometheus.CounterOpts{Name: "test_replies_matched"}),
		mUnknown:  prometheus.NewCounter(prometheus.CounterOpts{Name: "test_replies_unknown"}),
		mBadSig:   prometheus.NewCounter(prometheus.CounterOpts{Name: "test_replies_bad_signature"}),
		mInvalid:  prometheus.NewCounter(prometheus.CounterOpts{Name: "test_replies_invalid"}),
	}
}

func newTestAlertGate(
	t *testing.T,
	targets target.Repo,
	owners owner.Repo,
	ticks tick.Repo,
	out events.AlertEvents,
	clock notification.Clock,
	consecutive, lookback int,
) *AlertGate {
	t.Helper()
	return &AlertGate{
		log:                 zaptest.NewLogger(t),
		targets:             targets,
		owners:              owners,
		ticks:               ticks,
		out:                 out,
		clock:               clock,
		consecutiveRequired: consecutive,
		lookbackWindow:      lookback,
		pubPolicy:           retry.Policy{Name: "test", Attempts: 1},
		mAlerts:             prometheus.NewCounter(prometheus.CounterOpts{Name: "test_alerts_published"}),
		mSkipped:            prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_alerts_skipped"}, []string{"reason"}),
	}
}

func testTarget(id, ownerID int64) *target.Target {
	return &target.Target{ID: id, OwnerID: ownerID, URL: "https://example.com", AlertCooldownMinutes: 15}
}

func testOwner(id int64, email string) *owner.Owner {
	return &owner.Owner{ID: id, Email: email}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

// fakeTx runs the callback inline. beginErr simulates a transaction that
// cannot start; fnErrPassthrough is the default commit-succeeds behavior.
type fakeTx struct {
	beginErr  error
	commitErr error
	calls     int
}

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	if f.beginErr != nil {
		return f.beginErr
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return f.commitErr
}

type fakeTickRepo struct {
	mu        sync.Mutex
	nextID    int64
	inserted  []*tick.Tick
	insertErr error
	recent    []*tick.Tick
	listErr   error
}

func (f *fakeTickRepo) Insert(_ context.Context, t *tick.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	t.ID = f.nextID
	cp := *t
	f.inserted = append(f.inserted, &cp)
	return nil
}

func (f *fakeTickRepo) ListByTarget(_ context.Context, _ int64, limit int) ([]*tick.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit > len(f.recent) {
		limit = len(f.recent)
	}
	return f.recent[:limit], nil
}

func (f *fakeTickRepo) GetByID(_ context.Context, id int64) (*tick.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.inserted {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeTickRepo) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

type fakeTargetRepo struct {
	mu          sync.Mutex
	byID        map[int64]*target.Target
	enabled     []*target.Target
	listErr     error
	linkN       int64
	linkErr     error
	linkCalls   int
	lastAlert   map[int64]time.Time
	setAlertErr error
}

func (f *fakeTargetRepo) Create(_ context.Context, t *target.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byID == nil {
		f.byID = map[int64]*target.Target{}
	}
	f.byID[t.ID] = t
	return nil
}

func (f *fakeTargetRepo) GetByID(_ context.Context, id int64) (*target.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return t, nil
}

func (f *fakeTargetRepo) ListEnabled(_ context.Context) ([]*target.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, f.listErr
}

func (f *fakeTargetRepo) LinkTick(_ context.Context, _, _, _ int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkCalls++
	return f.linkN, f.linkErr
}

func (f *fakeTargetRepo) SetLastAlert(_ context.Context, targetID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setAlertErr != nil {
		return f.setAlertErr
	}
	if f.lastAlert == nil {
		f.lastAlert = map[int64]time.Time{}
	}
	f.lastAlert[targetID] = at
	return nil
}

type fakeValidatorRepo struct {
	mu          sync.Mutex
	nextID      int64
	byKey       map[string]*validator.Validator
	createErr   error
	creditN     int64
	creditErr   error
	credited    map[int64]int64
	creditCalls int
}

func (f *fakeValidatorRepo) Create(_ context.Context, v *validator.Validator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.byKey == nil {
		f.byKey = map[string]*validator.Validator{}
	}
	f.nextID++
	v.ID = f.nextID
	cp := *v
	f.byKey[v.PublicKey] = &cp
	return nil
}

func (f *fakeValidatorRepo) GetByID(_ context.Context, id int64) (*validator.Validator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.byKey {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeValidatorRepo) GetByPublicKey(_ context.Context, key string) (*validator.Validator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.byKey[key]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return v, nil
}

func (f *fakeValidatorRepo) Credit(_ context.Context, id, amount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creditCalls++
	if f.creditErr != nil {
		return 0, f.creditErr
	}
	if f.creditN == 0 {
		return 0, nil
	}
	if f.credited == nil {
		f.credited = map[int64]int64{}
	}
	f.credited[id] += amount
	return f.creditN, nil
}

type fakeOwnerRepo struct {
	mu     sync.Mutex
	owners map[int64]*owner.Owner
	err    error
}

func (f *fakeOwnerRepo) GetByID(_ context.Context, id int64) (*owner.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.owners[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return o, nil
}

func (f *fakeOwnerRepo) GetByEmail(_ context.Context, email string) (*owner.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.owners {
		if o.Email == email {
			return o, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeOwnerRepo) Create(_ context.Context, o *owner.Owner) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owners == nil {
		f.owners = map[int64]*owner.Owner{}
	}
	f.owners[o.ID] = o
	return nil
}

type fakeAlertEvents struct {
	mu         sync.Mutex
	publishErr error
	published  []events.DownAlert
}

func (f *fakeAlertEvents) PublishDownAlert(_ context.Context, a events.DownAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, a)
	return nil
}

func (f *fakeAlertEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type sentFrame struct {
	msgType string
	payload any
}

type fakeConn struct {
	mu      sync.Mutex
	sent    []sentFrame
	sendErr error
	closed  bool
}

func (c *fakeConn) Send(msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentFrame{msgType: msgType, payload: payload})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}
