package bus

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("bus",
		fx.Provide(
			New,
		),
	)
}
