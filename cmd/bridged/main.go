// Command bridged runs the migration control plane as an HTTP service:
// snapshot storage, validation, rollback and the migration API over the
// farm simulation subsystems.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"agrobridge/internal/adapter"
	"agrobridge/internal/blob"
	"agrobridge/internal/bridge"
	"agrobridge/internal/controller"
	"agrobridge/internal/httpapi"
	"agrobridge/internal/metrics"
	"agrobridge/internal/rollback"
	"agrobridge/internal/sim"
	"agrobridge/internal/snapshot"
	"agrobridge/internal/validation"
)

type config struct {
	Addr              string        `env:"BRIDGED_ADDR" envDefault:":8080"`
	ShutdownTimeout   time.Duration `env:"BRIDGED_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	SnapshotRetention int           `env:"BRIDGED_SNAPSHOT_RETENTION" envDefault:"10"`
	LogLevel          slog.Level    `env:"BRIDGED_LOG_LEVEL" envDefault:"info"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bridged:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	index, err := snapshot.OpenIndex(ctx)
	if err != nil {
		return fmt.Errorf("open snapshot index: %w", err)
	}
	store := snapshot.NewStore(blobs, index,
		snapshot.WithRetention(cfg.SnapshotRetention),
		snapshot.WithLogger(log.With("component", "snapshot")),
	)

	conv := adapter.New(log.With("component", "adapter"))
	val := validation.New(conv, validation.WithLogger(log.With("component", "validation")))
	brg := bridge.New(conv, val, log.With("component", "bridge"))
	mgr := rollback.NewManager(store, log.With("component", "rollback"))
	mset := metrics.New()

	world := sim.NewWorld()
	world.Register(brg, conv, val, mgr)

	ctrl := controller.New(controller.Deps{
		Bridge:    brg,
		Manager:   mgr,
		Validator: val,
		Adapter:   conv,
		Metrics:   mset,
		Log:       log.With("component", "controller"),
	})
	ctrl.AddListener(func(ev controller.Event) {
		log.Info("migration event", "kind", ev.Kind, "subsystem", ev.Subsystem, "message", ev.Message)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(ctrl, mset)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("bridged listening", "addr", cfg.Addr, "blob_driver", blobs.Driver())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("bridged stopped")
	return nil
}
