package kafka

import (
	"context"

	"github.com/vigilnet/vigil/internal/domain/events"
)

type AlertEventsKafka struct {
	p *Producer
}

func NewAlertEventsKafka(p *Producer) *AlertEventsKafka { return &AlertEventsKafka{p: p} }

var _ events.AlertEvents = (*AlertEventsKafka)(nil)

func (e *AlertEventsKafka) PublishDownAlert(ctx context.Context, a events.DownAlert) error {
	return e.p.PublishJSON(ctx, KeyFromInt64(a.TargetID), a)
}
