package rewrite

import "go.uber.org/fx"

// Module exposes the rewrite orchestrator via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
