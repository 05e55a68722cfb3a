package oms

import (
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("oms",
		fx.Provide(
			New,
		),
		fx.Invoke(func(s *Service) {
			s.Subscribe()
		}),
	)
}
