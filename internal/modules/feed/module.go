package feed

import (
	"context"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			NewClient,
		),
		fx.Invoke(func(lc fx.Lifecycle, c *Client, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					c.Start(ctx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					c.Stop()
					return nil
				},
			})
		}),
	)
}
