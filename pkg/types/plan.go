package types

import "time"

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanProPlus Plan = "pro_plus"
)

func (p Plan) Paid() bool {
	return p == PlanPro || p == PlanProPlus
}

// Covers reports whether a user on plan p may use features requiring the
// given plan. pro_plus covers pro; free covers only free.
func (p Plan) Covers(required Plan) bool {
	if required == PlanFree {
		return true
	}
	if required == PlanPro {
		return p == PlanPro || p == PlanProPlus
	}
	return p == required
}

type PaymentProvider string

const (
	PaymentProviderPayPal PaymentProvider = "paypal"
	PaymentProviderPaddle PaymentProvider = "paddle"
)

func ValidProvider(p PaymentProvider) bool {
	return p == PaymentProviderPayPal || p == PaymentProviderPaddle
}

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Billable reports whether the subscription still grants entitlement.
// A cancelled subscription stays billable until current_period_end passes.
func (s SubscriptionStatus) Billable() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusCancelled
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCreated       SubscriptionChangeReason = "created"
	SubscriptionChangeReasonActivated     SubscriptionChangeReason = "activated"
	SubscriptionChangeReasonRenewal       SubscriptionChangeReason = "renewal"
	SubscriptionChangeReasonCancelled     SubscriptionChangeReason = "cancelled"
	SubscriptionChangeReasonExpired       SubscriptionChangeReason = "expired"
	SubscriptionChangeReasonPaymentFailed SubscriptionChangeReason = "payment_failed"
	SubscriptionChangeReasonLazyExpiry    SubscriptionChangeReason = "lazy_expiry"
	SubscriptionChangeReasonAdminSweep    SubscriptionChangeReason = "admin_sweep"
)

type SubscriptionInfo struct {
	HasAccess bool       `json:"hasAccess"`
	Plan      Plan       `json:"plan"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
