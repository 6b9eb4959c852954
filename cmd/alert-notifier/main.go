package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/vigilnet/vigil/internal/config/alert-notifier"
	"github.com/vigilnet/vigil/internal/obs"
	kafkaRepo "github.com/vigilnet/vigil/internal/repository/kafka"
	pg "github.com/vigilnet/vigil/internal/repository/postgres"
	"github.com/vigilnet/vigil/internal/services/alertnotifier"

	"go.uber.org/zap"
)

func main() {
	// init
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	l.Info("starting alert-notifier",
		zap.Any("kafka_in", cfg.In),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.String("smtp_addr", cfg.SMTP.Addr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, &cfg.OTEL)
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// kafka
	cons := kafkaRepo.BootstrapConsumer(ctx, &kafkaRepo.ConsumerConfig{
		Brokers: cfg.In.Brokers,
		Topic:   cfg.In.Topic,
		GroupID: cfg.In.GroupID,
		Logger:  l,
	}, l)
	defer func() { _ = cons.Close() }()

	// metrics server
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(hctx context.Context) error {
		return db.Pool.Ping(hctx)
	}, l)

	// wiring
	owners := pg.NewOwnerRepo(db)
	notifs := pg.NewNotificationRepo(db)
	mailer := alertnotifier.NewMailer(cfg.SMTP).WithLogger(l)
	runner := alertnotifier.NewRunner(l, cons, mailer, owners, notifs)

	// run
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	// loop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
