package notification

import (
	"context"
	"time"
)

type Notification struct {
	ID       int64     `json:"id"`
	TargetID int64     `json:"target_id"`
	OwnerID  int64     `json:"owner_id"`
	Type     string    `json:"type"`
	SentAt   time.Time `json:"sent_at"`
	Payload  string    `json:"payload"`
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

type Clock interface {
	Now() time.Time
}
