package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// PublishPolicy covers short-lived broker hiccups when publishing events.
func PublishPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "publish",
		Attempts: 4,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("publish retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("publish retries exhausted", zap.Error(err))
			}
		},
	}
}
