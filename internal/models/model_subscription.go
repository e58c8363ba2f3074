package models

import (
	"time"

	"github.com/bossbuddy/billing/pkg/types"

	"gorm.io/datatypes"
)

// Subscription tracks one provider-side billing agreement.
// The unique index on (provider, provider_subscription_id) is the dedup and
// upsert key for state-machine transitions; one row per agreement, ever.
type Subscription struct {
	ID                     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID                 string                   `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Provider               types.PaymentProvider    `gorm:"column:provider;type:varchar(20);not null;uniqueIndex:unique_provider_subscription,priority:1" json:"provider"`
	ProviderSubscriptionID string                   `gorm:"column:provider_subscription_id;type:varchar(255);not null;uniqueIndex:unique_provider_subscription,priority:2" json:"provider_subscription_id"`
	Status                 types.SubscriptionStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	Plan                   types.Plan               `gorm:"column:plan;type:varchar(20);not null" json:"plan"`
	Currency               string                   `gorm:"column:currency;type:varchar(3)" json:"currency"`
	// AmountCents is the per-cycle price in the smallest currency unit.
	AmountCents        int64      `gorm:"column:amount_cents;type:bigint;not null;default:0" json:"amount_cents"`
	CurrentPeriodStart *time.Time `gorm:"column:current_period_start;default:null" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	CancelAtPeriodEnd  bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	// FailedPaymentCount counts consecutive PaymentFailed events; reset on a
	// completed payment. At the provider threshold the subscription expires.
	FailedPaymentCount int            `gorm:"column:failed_payment_count;not null;default:0" json:"failed_payment_count"`
	Extra              datatypes.JSON `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Valid reports whether the subscription grants entitlement at now.
// Cancelled subscriptions remain valid through the paid period.
func (s *Subscription) Valid(now time.Time) bool {
	return s != nil &&
		s.Status.Billable() &&
		s.CurrentPeriodEnd != nil &&
		s.CurrentPeriodEnd.After(now)
}
