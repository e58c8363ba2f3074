package quota

import "go.uber.org/fx"

// Module exposes the quota enforcer via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
