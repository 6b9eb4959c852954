package alertnotifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/domain/events"
	"github.com/vigilnet/vigil/internal/domain/notification"
	"github.com/vigilnet/vigil/internal/domain/owner"
	kafkax "github.com/vigilnet/vigil/internal/repository/kafka"
)

// Runner consumes down-alert events and turns them into emails. A failed
// send returns an error so the event is redelivered; notification rows are
// best effort.
type Runner struct {
	log    *zap.Logger
	cons   *kafkax.Consumer
	mail   notification.EmailSender
	owners owner.Repo
	notifs notification.Repo

	mConsumed prometheus.Counter
	mSent     prometheus.Counter
	mErrors   prometheus.Counter
}

func NewRunner(
	log *zap.Logger,
	cons *kafkax.Consumer,
	mail notification.EmailSender,
	owners owner.Repo,
	notifs notification.Repo,
) *Runner {
	return &Runner{
		log:    log,
		cons:   cons,
		mail:   mail,
		owners: owners,
		notifs: notifs,
		mConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "alert_notifier_events_consumed_total", Help: "DownAlert events consumed",
		}),
		mSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "alert_notifier_emails_sent_total", Help: "Emails sent",
		}),
		mErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "alert_notifier_errors_total", Help: "Errors",
		}),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	handler := kafkax.JSONHandler(
		func(ctx context.Context, _ []byte, ev *events.DownAlert) error {
			r.mConsumed.Inc()
			if ev.TargetID <= 0 {
				r.log.Warn("invalid DownAlert: bad target_id", zap.Int64("target_id", ev.TargetID))
				return nil
			}
			return r.handleDownAlert(ctx, ev)
		},
	)

	if err := r.cons.Consume(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		r.mErrors.Inc()
		r.log.Warn("kafka consume", zap.Error(err))
		return err
	}
	return ctx.Err()
}

func (r *Runner) handleDownAlert(ctx context.Context, ev *events.DownAlert) error {
	o, err := r.owners.GetByID(ctx, ev.OwnerID)
	if err != nil {
		r.mErrors.Inc()
		return fmt.Errorf("get owner: %w", err)
	}
	if o.Email == "" {
		r.log.Debug("owner has no email; alert dropped", zap.Int64("owner_id", o.ID))
		return nil
	}

	subject := fmt.Sprintf("Your site %s is down", ev.URL)
	text := fmt.Sprintf(
		"Hello!\n\nMultiple validators reported %s as unreachable at %s.\n\n— Vigil",
		ev.URL, ev.At.UTC().Format(time.RFC3339),
	)
	html := fmt.Sprintf(
		"<p>Hello!</p><p>Multiple validators reported <a href=%q>%s</a> as unreachable at %s.</p><p>— Vigil</p>",
		ev.URL, ev.URL, ev.At.UTC().Format(time.RFC3339),
	)

	if err := r.mail.Send(ctx, o.Email, subject, text, html); err != nil {
		r.mErrors.Inc()
		return fmt.Errorf("send email: %w", err)
	}
	r.mSent.Inc()

	if r.notifs != nil {
		n := &notification.Notification{
			TargetID: ev.TargetID,
			OwnerID:  o.ID,
			Type:     "email",
			SentAt:   time.Now().UTC(),
			Payload:  text,
		}
		if err := r.notifs.Create(ctx, n); err != nil {
			r.log.Warn("record notification", zap.Error(err))
		}
	}

	return nil
}
