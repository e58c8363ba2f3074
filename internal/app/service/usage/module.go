package usage

import "go.uber.org/fx"

// Module exposes the usage recorder via Fx.
var Module = fx.Options(
	fx.Provide(New),
)
