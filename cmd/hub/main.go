package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/vigilnet/vigil/internal/config/hub"
	"github.com/vigilnet/vigil/internal/obs"
	kafkaRepo "github.com/vigilnet/vigil/internal/repository/kafka"
	pg "github.com/vigilnet/vigil/internal/repository/postgres"
	"github.com/vigilnet/vigil/internal/services/hub"
	"github.com/vigilnet/vigil/internal/sig"

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
	l.Info("starting hub",
		zap.String("listen_addr", cfg.Hub.ListenAddr),
		zap.String("metrics_addr", cfg.Hub.MetricsAddr),
		zap.Duration("dispatch_interval", cfg.Hub.DispatchInterval),
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
	prod := kafkaRepo.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(l)
	defer func() { _ = prod.Close() }()
	alerts := kafkaRepo.NewAlertEventsKafka(prod)

	// metrics server
	ms := obs.BootstrapMetricsServer(cfg.Hub.MetricsAddr, func(hctx context.Context) error {
		return db.Pool.Ping(hctx)
	}, l)

	// wiring
	validators := pg.NewValidatorRepo(db)
	targets := pg.NewTargetRepo(db)
	ticks := pg.NewTickRepo(db)
	owners := pg.NewOwnerRepo(db)
	tx := pg.NewTransactor(db, l)
	clock := hub.SystemClock{}

	verifier := sig.NewVerifier(l)
	registry := hub.NewRegistry(l, validators)
	rounds := hub.NewRoundTable()
	persister := hub.NewPersister(l, tx, ticks, targets, validators, clock, cfg.Hub.RewardPerCheck)
	gate := hub.NewAlertGate(l, targets, owners, ticks, alerts, clock,
		cfg.Hub.ConsecutiveRequired, cfg.Hub.LookbackWindow)
	replies := hub.NewReplyHandler(l, rounds, verifier, persister, gate)
	server := hub.NewServer(l, registry, replies, verifier)
	dispatcher := hub.NewDispatcher(l, targets, registry, rounds,
		cfg.Hub.DispatchInterval, cfg.Hub.RoundTTL)

	ws := &http.Server{
		Addr:        cfg.Hub.ListenAddr,
		Handler:     server.Routes(),
		ReadTimeout: 0, // long-lived websocket connections
		IdleTimeout: 0,
	}

	// run
	errCh := make(chan error, 2)
	go func() { errCh <- dispatcher.Run(ctx) }()
	go func() {
		l.Info("ws listening", zap.String("addr", cfg.Hub.ListenAddr))
		if err := ws.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	l.Info("hub started")

	// loop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("hub error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ws.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
