package webhook

import "go.uber.org/fx"

// Module exposes the webhook ingestion pipeline via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
