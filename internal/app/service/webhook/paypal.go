package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	subscription "github.com/bossbuddy/billing/internal/app/service/subscription"
	types "github.com/bossbuddy/billing/pkg/types"
)

// PayPal event types handled by the state machine.
const (
	paypalSubscriptionCreated   = "BILLING.SUBSCRIPTION.CREATED"
	paypalSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	paypalSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	paypalSubscriptionExpired   = "BILLING.SUBSCRIPTION.EXPIRED"
	paypalPaymentCompleted      = "PAYMENT.SALE.COMPLETED"
	paypalPaymentFailed         = "BILLING.SUBSCRIPTION.PAYMENT.FAILED"
)

type paypalEnvelope struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID         string `json:"id"`
		PlanID     string `json:"plan_id"`
		Subscriber struct {
			EmailAddress string `json:"email_address"`
		} `json:"subscriber"`
		BillingInfo struct {
			NextBillingTime time.Time `json:"next_billing_time"`
		} `json:"billing_info"`
		StatusUpdateTime time.Time `json:"status_update_time"`
		ShippingAmount   struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"shipping_amount"`
		// Sale resources carry the subscription id here.
		BillingAgreementID string    `json:"billing_agreement_id"`
		CreateTime         time.Time `json:"create_time"`
	} `json:"resource"`
}

// decimalToCents parses an amount like "9.99" into 999. Fractions beyond
// two digits are truncated.
func decimalToCents(v string) int64 {
	if v == "" {
		return 0
	}
	whole, frac, _ := strings.Cut(v, ".")
	cents, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0
	}
	cents *= 100
	if len(frac) > 0 {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		if f, err := strconv.ParseInt(frac, 10, 64); err == nil {
			cents += f
		}
	}
	return cents
}

// parsePayPalEvent extracts the event identity and maps the event type onto
// a state machine command. A nil command with nil error means the event type
// is not one the state machine cares about.
func parsePayPalEvent(body []byte) (eventID, eventType string, cmd subscription.Command, err error) {
	var env paypalEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.ID == "" || env.EventType == "" {
		return "", "", nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	provider := types.PaymentProviderPayPal
	switch env.EventType {
	case paypalSubscriptionCreated:
		cmd = subscription.SubscriptionCreated{
			Provider:               provider,
			ProviderSubscriptionID: env.Resource.ID,
			ProviderPlanID:         env.Resource.PlanID,
			Email:                  env.Resource.Subscriber.EmailAddress,
			Currency:               env.Resource.ShippingAmount.CurrencyCode,
			AmountCents:            decimalToCents(env.Resource.ShippingAmount.Value),
		}
	case paypalSubscriptionActivated:
		cmd = subscription.SubscriptionActivated{
			Provider:               provider,
			ProviderSubscriptionID: env.Resource.ID,
			ProviderPlanID:         env.Resource.PlanID,
			Email:                  env.Resource.Subscriber.EmailAddress,
			NextBillingTime:        env.Resource.BillingInfo.NextBillingTime,
			StatusUpdateTime:       env.Resource.StatusUpdateTime,
		}
	case paypalPaymentCompleted:
		cmd = subscription.PaymentCompleted{
			Provider:           provider,
			BillingAgreementID: env.Resource.BillingAgreementID,
			PaymentTime:        env.Resource.CreateTime,
		}
	case paypalSubscriptionCancelled:
		cmd = subscription.SubscriptionCancelled{Provider: provider, ProviderSubscriptionID: env.Resource.ID}
	case paypalSubscriptionExpired:
		cmd = subscription.SubscriptionExpired{Provider: provider, ProviderSubscriptionID: env.Resource.ID}
	case paypalPaymentFailed:
		cmd = subscription.PaymentFailed{Provider: provider, ProviderSubscriptionID: env.Resource.ID}
	}
	return env.ID, env.EventType, cmd, nil
}
