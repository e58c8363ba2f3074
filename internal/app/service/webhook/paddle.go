package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	subscription "github.com/bossbuddy/billing/internal/app/service/subscription"
	types "github.com/bossbuddy/billing/pkg/types"
)

// Paddle event types handled by the state machine.
const (
	paddleSubscriptionCreated   = "subscription.created"
	paddleSubscriptionActivated = "subscription.activated"
	paddleSubscriptionCanceled  = "subscription.canceled"
	paddleSubscriptionPastDue   = "subscription.past_due"
	paddleTransactionCompleted  = "transaction.completed"
)

type paddleEnvelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		CustomData struct {
			Email string `json:"email"`
		} `json:"custom_data"`
		CurrencyCode         string `json:"currency_code"`
		CurrentBillingPeriod struct {
			StartsAt time.Time `json:"starts_at"`
			EndsAt   time.Time `json:"ends_at"`
		} `json:"current_billing_period"`
		Items []struct {
			Price struct {
				ID         string `json:"id"`
				ProductID  string `json:"product_id"`
				UnitPrice  struct {
					Amount string `json:"amount"`
				} `json:"unit_price"`
			} `json:"price"`
		} `json:"items"`
		// Transactions reference their subscription here.
		SubscriptionID string `json:"subscription_id"`
	} `json:"data"`
}

func (e *paddleEnvelope) priceID() string {
	if len(e.Data.Items) == 0 {
		return ""
	}
	return e.Data.Items[0].Price.ID
}

func (e *paddleEnvelope) amountCents() int64 {
	if len(e.Data.Items) == 0 {
		return 0
	}
	// Paddle amounts are already in the smallest unit.
	var cents int64
	fmt.Sscanf(e.Data.Items[0].Price.UnitPrice.Amount, "%d", &cents)
	return cents
}

// parsePaddleEvent mirrors parsePayPalEvent for Paddle's notification shape.
func parsePaddleEvent(body []byte) (eventID, eventType string, cmd subscription.Command, err error) {
	var env paddleEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return "", "", nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	provider := types.PaymentProviderPaddle
	switch env.EventType {
	case paddleSubscriptionCreated:
		cmd = subscription.SubscriptionCreated{
			Provider:               provider,
			ProviderSubscriptionID: env.Data.ID,
			ProviderPlanID:         env.priceID(),
			Email:                  env.Data.CustomData.Email,
			Currency:               env.Data.CurrencyCode,
			AmountCents:            env.amountCents(),
		}
	case paddleSubscriptionActivated:
		cmd = subscription.SubscriptionActivated{
			Provider:               provider,
			ProviderSubscriptionID: env.Data.ID,
			ProviderPlanID:         env.priceID(),
			Email:                  env.Data.CustomData.Email,
			NextBillingTime:        env.Data.CurrentBillingPeriod.EndsAt,
			StatusUpdateTime:       env.Data.CurrentBillingPeriod.StartsAt,
		}
	case paddleTransactionCompleted:
		cmd = subscription.PaymentCompleted{
			Provider:           provider,
			BillingAgreementID: env.Data.SubscriptionID,
			PaymentTime:        env.OccurredAt,
		}
	case paddleSubscriptionCanceled:
		cmd = subscription.SubscriptionCancelled{Provider: provider, ProviderSubscriptionID: env.Data.ID}
	case paddleSubscriptionPastDue:
		cmd = subscription.PaymentFailed{Provider: provider, ProviderSubscriptionID: env.Data.ID}
	}
	return env.EventID, env.EventType, cmd, nil
}
