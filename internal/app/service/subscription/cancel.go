package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "github.com/bossbuddy/billing/internal/models"
	"github.com/bossbuddy/billing/pkg/logctx"
	types "github.com/bossbuddy/billing/pkg/types"
)

var ErrNoActiveSubscription = errors.New("no active subscription")

// Cancel ends the user's billing agreement at the provider and flags the
// local rows for end-of-period downgrade. The paid period is never cut
// short; the returned time is when access actually ends.
func (s *Service) Cancel(ctx context.Context, userID string) (*time.Time, error) {
	log := logctx.FromCtx(ctx, s.log)

	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, ErrNoActiveSubscription
	}
	if !user.Plan.Paid() {
		return nil, ErrNoActiveSubscription
	}

	var provider types.PaymentProvider
	var providerSubID string
	switch {
	case user.PayPalSubscriptionID != nil && *user.PayPalSubscriptionID != "":
		provider, providerSubID = types.PaymentProviderPayPal, *user.PayPalSubscriptionID
	case user.PaddleSubscriptionID != nil && *user.PaddleSubscriptionID != "":
		provider, providerSubID = types.PaymentProviderPaddle, *user.PaddleSubscriptionID
	default:
		return nil, ErrNoActiveSubscription
	}

	canceller, ok := s.cancellers[provider]
	if !ok {
		return nil, fmt.Errorf("no cancellation client for provider %s", provider)
	}
	// The provider call comes first: if it fails the local state stays
	// untouched and the user can retry. The provider will also emit a
	// cancellation webhook, which replays harmlessly over the flags set
	// below.
	if err := canceller.CancelSubscription(ctx, providerSubID); err != nil {
		return nil, fmt.Errorf("failed to cancel with %s: %w", provider, err)
	}

	if err := s.Apply(ctx, SubscriptionCancelled{Provider: provider, ProviderSubscriptionID: providerSubID}); err != nil {
		// Provider-side cancellation succeeded; the webhook will reconcile
		// the local rows even if this write failed.
		log.Errorw("provider cancelled but local update failed",
			"user_id", userID, "provider", provider, "error", err)
	}

	log.Infow("subscription cancelled", "user_id", userID, "provider", provider)
	return user.PlanExpiresAt, nil
}
