package app

import (
	"time"

	"github.com/bossbuddy/billing/internal/app/api/server"
	"github.com/bossbuddy/billing/internal/app/service/eventlog"
	"github.com/bossbuddy/billing/internal/app/service/quota"
	"github.com/bossbuddy/billing/internal/app/service/rewrite"
	"github.com/bossbuddy/billing/internal/app/service/statistics"
	"github.com/bossbuddy/billing/internal/app/service/subscription"
	"github.com/bossbuddy/billing/internal/app/service/usage"
	"github.com/bossbuddy/billing/internal/app/service/webhook"
	"github.com/bossbuddy/billing/internal/platform/db"
	"github.com/bossbuddy/billing/internal/platform/generation"
	"github.com/bossbuddy/billing/internal/platform/paddle"
	"github.com/bossbuddy/billing/internal/platform/paypal"
	"github.com/bossbuddy/billing/pkg/config"
	"github.com/bossbuddy/billing/pkg/logger"
	"github.com/bossbuddy/billing/pkg/types"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// registerProviders attaches each payment provider's signature verifier and
// cancel client to the webhook pipeline and the subscription state machine.
func registerProviders(sub *subscription.Service, hooks *webhook.Service, pp *paypal.Client, pd *paddle.Client) {
	hooks.RegisterVerifier(types.PaymentProviderPayPal, pp)
	hooks.RegisterVerifier(types.PaymentProviderPaddle, pd)
	sub.RegisterCanceller(types.PaymentProviderPayPal, pp)
	sub.RegisterCanceller(types.PaymentProviderPaddle, pd)
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	server.Module,
	subscription.Module,
	eventlog.Module,
	webhook.Module,
	usage.Module,
	quota.Module,
	rewrite.Module,
	statistics.Module,
	fx.Provide(paypal.NewClient),
	fx.Provide(paddle.NewClient),
	fx.Provide(generation.NewClient),
	fx.Invoke(registerProviders),
)
