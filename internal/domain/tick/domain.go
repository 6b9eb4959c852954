package tick

import "time"

type Status string

const (
	StatusGood Status = "Good"
	StatusBad  Status = "Bad"
)

func (s Status) Valid() bool { return s == StatusGood || s == StatusBad }

// Tick is one immutable observation of a target's status, reported by a
// validator and created only by the hub's persister.
type Tick struct {
	ID          int64     `json:"id"`
	TargetID    int64     `json:"target_id"`
	ValidatorID int64     `json:"validator_id"`
	Status      Status    `json:"status"`
	LatencyMs   int64     `json:"latency_ms"`
	ObservedAt  time.Time `json:"observed_at"`
}
