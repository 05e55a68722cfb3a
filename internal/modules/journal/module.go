package journal

import (
	"context"

	"exec_engine/internal/modules/ems"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			New,
			func(s *Service) ems.Journal { return s },
		),
		fx.Invoke(func(lc fx.Lifecycle, s *Service) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return s.Migrate(ctx)
				},
			})
		}),
	)
}
