package events

import (
	"context"
	"time"
)

// DownAlert is published by the hub's notification gate once a target has
// crossed the consecutive-failure threshold and is out of cooldown.
type DownAlert struct {
	TargetID int64     `json:"target_id"`
	OwnerID  int64     `json:"owner_id"`
	URL      string    `json:"url"`
	TickID   int64     `json:"tick_id"`
	At       time.Time `json:"at"`
}

type AlertEvents interface {
	PublishDownAlert(ctx context.Context, a DownAlert) error
}
