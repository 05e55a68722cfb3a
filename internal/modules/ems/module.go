package ems

import (
	"context"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("ems",
		fx.Provide(
			New,
		),
		fx.Invoke(func(lc fx.Lifecycle, s *Service, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					s.Start(ctx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					s.Stop()
					return nil
				},
			})
		}),
	)
}
