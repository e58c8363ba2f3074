package models

import (
	"time"

	"github.com/bossbuddy/billing/pkg/types"
)

// User is the entitlement record. Plan and expiry are mutated only by the
// subscription state machine (and the lazy-expiry downgrade pass).
type User struct {
	ID    string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Email string `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	Plan  types.Plan `gorm:"column:plan;type:varchar(20);not null;default:'free'" json:"plan"`
	// PlanExpiresAt is nil for free users and for legacy rows created before
	// expiry tracking. A past value means the row must be treated as free
	// until a downgrade pass corrects it.
	PlanExpiresAt        *time.Time `gorm:"column:plan_expires_at;default:null" json:"plan_expires_at"`
	PayPalSubscriptionID *string    `gorm:"column:paypal_subscription_id;type:varchar(255);default:null" json:"paypal_subscription_id"`
	PaddleSubscriptionID *string    `gorm:"column:paddle_subscription_id;type:varchar(255);default:null" json:"paddle_subscription_id"`
	CancelAtPeriodEnd    bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	Currency             string     `gorm:"column:currency;type:varchar(3);not null;default:'USD'" json:"currency"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Entitled reports whether the stored plan is paid and not lapsed at now.
// A paid plan with no expiry is not yet entitled: the expiry is only set
// when the subscription activates, and legacy rows without expiry tracking
// are treated as free.
func (u *User) Entitled(now time.Time) bool {
	return u != nil && u.Plan.Paid() && u.PlanExpiresAt != nil && u.PlanExpiresAt.After(now)
}

// EffectivePlan applies the lazy-expiry rule without touching the store.
func (u *User) EffectivePlan(now time.Time) types.Plan {
	if u == nil {
		return types.PlanFree
	}
	if u.Plan.Paid() && !u.Entitled(now) {
		return types.PlanFree
	}
	return u.Plan
}

// ProviderSubscriptionID returns the stored subscription id for a provider.
func (u *User) ProviderSubscriptionID(provider types.PaymentProvider) *string {
	if u == nil {
		return nil
	}
	switch provider {
	case types.PaymentProviderPayPal:
		return u.PayPalSubscriptionID
	case types.PaymentProviderPaddle:
		return u.PaddleSubscriptionID
	}
	return nil
}
