package subscription

import (
	"time"

	"github.com/bossbuddy/billing/pkg/types"
)

// Command is the closed set of state transitions the webhook layer can
// request. Each provider event maps to exactly one variant; the state
// machine matches exhaustively, so a new event type is a compile-time
// addition here rather than a string case in a handler.
type Command interface {
	CommandType() string
	CommandProvider() types.PaymentProvider

	isCommand()
}

// SubscriptionCreated records a new provider agreement. No entitlement is
// granted yet; the user row is upserted with the inferred plan and a nil
// expiry.
type SubscriptionCreated struct {
	Provider               types.PaymentProvider
	ProviderSubscriptionID string
	ProviderPlanID         string
	Email                  string
	Currency               string
	AmountCents            int64
}

func (SubscriptionCreated) CommandType() string                      { return "subscription_created" }
func (c SubscriptionCreated) CommandProvider() types.PaymentProvider { return c.Provider }
func (SubscriptionCreated) isCommand()                               {}

// SubscriptionActivated grants entitlement. It upserts rather than strictly
// updates so that an activation delivered before (or without) its creation
// event still converges to the same state.
type SubscriptionActivated struct {
	Provider               types.PaymentProvider
	ProviderSubscriptionID string
	ProviderPlanID         string
	Email                  string
	// NextBillingTime becomes the user's plan expiry and the period end.
	NextBillingTime  time.Time
	StatusUpdateTime time.Time
}

func (SubscriptionActivated) CommandType() string                      { return "subscription_activated" }
func (c SubscriptionActivated) CommandProvider() types.PaymentProvider { return c.Provider }
func (SubscriptionActivated) isCommand()                               {}

// PaymentCompleted extends the current period by one billing cycle,
// anchored at PaymentTime so replays are no-ops.
type PaymentCompleted struct {
	Provider types.PaymentProvider
	// BillingAgreementID is the provider subscription the sale belongs to.
	BillingAgreementID string
	PaymentTime        time.Time
}

func (PaymentCompleted) CommandType() string                      { return "payment_completed" }
func (c PaymentCompleted) CommandProvider() types.PaymentProvider { return c.Provider }
func (PaymentCompleted) isCommand()                               {}

// SubscriptionCancelled starts the grace period: the subscription is marked
// cancelled but the plan is kept until the paid period lapses.
type SubscriptionCancelled struct {
	Provider               types.PaymentProvider
	ProviderSubscriptionID string
}

func (SubscriptionCancelled) CommandType() string                      { return "subscription_cancelled" }
func (c SubscriptionCancelled) CommandProvider() types.PaymentProvider { return c.Provider }
func (SubscriptionCancelled) isCommand()                               {}

// SubscriptionExpired revokes entitlement immediately.
type SubscriptionExpired struct {
	Provider               types.PaymentProvider
	ProviderSubscriptionID string
}

func (SubscriptionExpired) CommandType() string                      { return "subscription_expired" }
func (c SubscriptionExpired) CommandProvider() types.PaymentProvider { return c.Provider }
func (SubscriptionExpired) isCommand()                               {}

// PaymentFailed increments the failure counter; at the provider threshold
// the subscription is treated as expired.
type PaymentFailed struct {
	Provider               types.PaymentProvider
	ProviderSubscriptionID string
}

func (PaymentFailed) CommandType() string                      { return "payment_failed" }
func (c PaymentFailed) CommandProvider() types.PaymentProvider { return c.Provider }
func (PaymentFailed) isCommand()                               {}
