package target

import "time"

// Target is a monitored website. Targets are never deleted, only disabled,
// so tick history stays resolvable.
type Target struct {
	ID                   int64      `json:"id"`
	OwnerID              int64      `json:"owner_id"`
	URL                  string     `json:"url"`
	Disabled             bool       `json:"disabled"`
	LastAlertAt          *time.Time `json:"last_alert_at"`
	AlertCooldownMinutes int        `json:"alert_cooldown_minutes"`
	CreatedAt            time.Time  `json:"created_at"`
}
