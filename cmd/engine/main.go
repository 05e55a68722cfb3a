package main

import (
	"context"
	"log"

	"exec_engine/internal/connector"
	"exec_engine/internal/modules/bus"
	"exec_engine/internal/modules/cache"
	"exec_engine/internal/modules/config"
	"exec_engine/internal/modules/ems"
	"exec_engine/internal/modules/feed"
	"exec_engine/internal/modules/health"
	"exec_engine/internal/modules/journal"
	"exec_engine/internal/modules/oms"
	"exec_engine/internal/modules/postgres"
	"exec_engine/internal/registry"
	"exec_engine/pkg/logger"
	"exec_engine/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			func(b *bus.Bus) connector.Private {
				return connector.NewPaper(b)
			},
		),
		config.Module(),
		bus.Module(),
		registry.Module(),
		cache.Module(),
		oms.Module(),
		ems.Module(),
		postgres.Module(),
		journal.Module(),
		feed.Module(),
		health.Module(),
		fx.Invoke(registerTracing),
	)
	app.Run()
}

func registerTracing(lc fx.Lifecycle, cfg *config.Config) {
	closeTracer := func() {}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if cfg.Jaeger.Host == "" {
				return nil // без агента живём на noop-трейсере
			}
			_, closer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				logger.Error("tracing init: %v", err)
				return nil
			}
			closeTracer = closer
			return nil
		},
		OnStop: func(_ context.Context) error {
			closeTracer()
			return nil
		},
	})
}
