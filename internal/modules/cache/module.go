package cache

import (
	"context"

	"exec_engine/internal/modules/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("cache",
		fx.Provide(
			func(cfg *config.Config) Store {
				rdb := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				return NewRedisStore(rdb)
			},
			New,
		),
		fx.Invoke(func(lc fx.Lifecycle, c *Cache, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					c.Start(ctx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					c.Close()
					return nil
				},
			})
		}),
	)
}
