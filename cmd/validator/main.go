package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/vigilnet/vigil/internal/config/validator"
	"github.com/vigilnet/vigil/internal/obs"
	vsvc "github.com/vigilnet/vigil/internal/services/validator"
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

	// otel
	otelCloser, err := obs.SetupOTel(ctx, &cfg.OTEL)
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// identity
	signer, err := sig.LoadOrCreateSigner(cfg.Validator.KeyFile)
	if err != nil {
		l.Fatal("load key", zap.Error(err))
	}
	l.Info("starting validator",
		zap.String("hub_url", cfg.Validator.HubURL),
		zap.String("public_key", signer.PublicKey()),
		zap.String("metrics_addr", cfg.Validator.MetricsAddr),
	)

	// metrics server
	ms := obs.BootstrapMetricsServer(cfg.Validator.MetricsAddr, func(context.Context) error {
		return nil
	}, l)

	// wiring
	probe := vsvc.NewProbe(cfg.Probe)
	runner := vsvc.NewRunner(l, signer, probe, cfg.Validator.HubURL, cfg.Validator.IP)

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
