package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "github.com/bossbuddy/billing/internal/models"
	"github.com/bossbuddy/billing/pkg/logctx"
	types "github.com/bossbuddy/billing/pkg/types"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// Resolve loads a user and applies the lazy-expiry rule: a paid plan whose
// expiry has passed is reported as free immediately, and the stored row is
// corrected in the background. Readers never block on the downgrade.
func (s *Service) Resolve(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := time.Now()
	if user.Plan.Paid() && !user.Entitled(now) {
		go s.downgradeLapsed(user.ID)
		user.Plan = types.PlanFree
		user.PlanExpiresAt = nil
	}
	return &user, nil
}

// Status returns the entitlement view served to clients.
func (s *Service) Status(ctx context.Context, userID string) (*types.SubscriptionInfo, error) {
	user, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &types.SubscriptionInfo{
		HasAccess: user.Plan.Paid(),
		Plan:      user.Plan,
		ExpiresAt: user.PlanExpiresAt,
	}, nil
}

// downgradeLapsed persists a lazy-expiry downgrade. The guard in the WHERE
// clause keeps it from clobbering a renewal that landed in between.
func (s *Service) downgradeLapsed(userID string) {
	res := s.db.Model(&models.User{}).
		Where("id = ? AND plan <> ? AND plan_expires_at IS NOT NULL AND plan_expires_at <= ?",
			userID, types.PlanFree, time.Now()).
		Updates(map[string]any{
			"plan":                   types.PlanFree,
			"plan_expires_at":        nil,
			"paypal_subscription_id": nil,
			"paddle_subscription_id": nil,
			"cancel_at_period_end":   false,
		})
	if res.Error != nil {
		s.log.Errorf("failed to downgrade lapsed user %s: %v", userID, res.Error)
		return
	}
	if res.RowsAffected > 0 {
		s.auditLog(context.Background(), userID, types.SubscriptionChangeReasonLazyExpiry, nil, nil)
	}
}

// SweepExpired downgrades every user whose paid plan lapsed and marks the
// backing subscriptions expired. Run from the admin sweep endpoint or a
// scheduler; lazy expiry already keeps reads correct, the sweep just keeps
// the stored rows from drifting.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	log := logctx.FromCtx(ctx, s.log)
	now := time.Now()

	var lapsed []models.User
	if err := s.db.WithContext(ctx).
		Where("plan <> ? AND plan_expires_at IS NOT NULL AND plan_expires_at <= ?", types.PlanFree, now).
		Find(&lapsed).Error; err != nil {
		return 0, fmt.Errorf("failed to list lapsed users: %w", err)
	}

	var swept int64
	for _, u := range lapsed {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Subscription{}).
				Where("user_id = ? AND status IN ?", u.ID,
					[]types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusCancelled, types.SubscriptionStatusPastDue}).
				Where("current_period_end IS NOT NULL AND current_period_end <= ?", now).
				Update("status", types.SubscriptionStatusExpired).Error; err != nil {
				return err
			}
			return s.downgradeUserTx(ctx, tx, u.ID)
		})
		if err != nil {
			log.Errorw("sweep failed for user", "user_id", u.ID, "error", err)
			continue
		}
		swept++
		s.auditLog(ctx, u.ID, types.SubscriptionChangeReasonAdminSweep, nil, nil)
	}

	log.Infow("expiry sweep finished", "lapsed", len(lapsed), "swept", swept)
	return swept, nil
}
