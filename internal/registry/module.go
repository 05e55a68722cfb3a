package registry

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("registry",
		fx.Provide(
			New,
		),
	)
}
