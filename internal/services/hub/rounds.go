package hub

import (
	"sync"
	"time"
)

// Round is the continuation state captured at dispatch time. The issuing
// peer's identity and public key are captured here on purpose: the peer may
// have disconnected and reconnected on a different channel by the time its
// reply arrives, so nothing is re-resolved from the registry.
type Round struct {
	TargetID    int64
	OwnerID     int64
	URL         string
	ValidatorID int64
	PublicKey   string
	IssuedAt    time.Time
}

// RoundTable correlates dispatched rounds with their eventual replies.
// Entries are single-fire: Take removes atomically, so concurrent replies for
// the same round id produce exactly one winner.
type RoundTable struct {
	mu     sync.Mutex
	rounds map[string]Round
}

func NewRoundTable() *RoundTable {
	return &RoundTable{rounds: make(map[string]Round)}
}

func (t *RoundTable) Put(id string, r Round) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rounds[id] = r
}

func (t *RoundTable) Take(id string) (Round, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rounds[id]
	if ok {
		delete(t.rounds, id)
	}
	return r, ok
}

func (t *RoundTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rounds)
}

// EvictBefore drops rounds issued before cutoff and reports how many went.
// Abandoned rounds never complete on their own, so without eviction they
// accumulate until process restart.
func (t *RoundTable) EvictBefore(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, r := range t.rounds {
		if r.IssuedAt.Before(cutoff) {
			delete(t.rounds, id)
			n++
		}
	}
	return n
}
