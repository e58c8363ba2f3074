package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	models "github.com/bossbuddy/billing/internal/models"
	"github.com/bossbuddy/billing/pkg/config"
	"github.com/bossbuddy/billing/pkg/tool"
	types "github.com/bossbuddy/billing/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Subscription{}, &models.SubscriptionLog{},
		&models.WebhookEvent{}, &models.UsageLog{},
	))
	cfg := &config.Config{
		PlanItems: []*types.PlanItem{
			{ID: "pro-monthly", ProviderID: types.PaymentProviderPayPal, ProviderPlanID: "P-PRO", Plan: types.PlanPro, BillingCycleDays: 30},
			{ID: "pro-paddle", ProviderID: types.PaymentProviderPaddle, ProviderPlanID: "654321", Plan: types.PlanPro, BillingCycleDays: 30},
		},
		PaymentFailureThreshold: 3,
	}
	return NewService(cfg, db, zap.NewNop().Sugar())
}

func loadUser(t *testing.T, s *Service, email string) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, s.db.Where("email = ?", email).First(&u).Error)
	return &u
}

func loadSub(t *testing.T, s *Service, provider types.PaymentProvider, id string) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, s.db.Where("provider = ? AND provider_subscription_id = ?", provider, id).First(&sub).Error)
	return &sub
}

func TestApply_CreatedThenActivated(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	next := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)

	require.NoError(t, s.Apply(ctx, SubscriptionCreated{
		Provider:               types.PaymentProviderPayPal,
		ProviderSubscriptionID: "I-100",
		ProviderPlanID:         "P-PRO",
		Email:                  "alice@example.com",
		Currency:               "USD",
		AmountCents:            999,
	}))

	// Created alone grants nothing yet.
	u := loadUser(t, s, "alice@example.com")
	assert.False(t, u.Entitled(time.Now()))
	sub := loadSub(t, s, types.PaymentProviderPayPal, "I-100")
	assert.Equal(t, types.SubscriptionStatusPending, sub.Status)

	require.NoError(t, s.Apply(ctx, SubscriptionActivated{
		Provider:               types.PaymentProviderPayPal,
		ProviderSubscriptionID: "I-100",
		ProviderPlanID:         "P-PRO",
		NextBillingTime:        next,
	}))

	u = loadUser(t, s, "alice@example.com")
	assert.True(t, u.Entitled(time.Now()))
	assert.Equal(t, types.PlanPro, u.Plan)
	require.NotNil(t, u.PlanExpiresAt)
	assert.WithinDuration(t, next, *u.PlanExpiresAt, time.Second)

	sub = loadSub(t, s, types.PaymentProviderPayPal, "I-100")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.WithinDuration(t, next, *sub.CurrentPeriodEnd, time.Second)
}

func TestApply_CreatedReplayIsNoOp(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	cmd := SubscriptionCreated{
		Provider:               types.PaymentProviderPayPal,
		ProviderSubscriptionID: "I-200",
		ProviderPlanID:         "P-PRO",
		Email:                  "bob@example.com",
	}
	require.NoError(t, s.Apply(ctx, cmd))
	require.NoError(t, s.Apply(ctx, cmd))

	var count int64
	require.NoError(t, s.db.Model(&models.Subscription{}).
		Where("provider_subscription_id = ?", "I-200").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, s.db.Model(&models.User{}).
		Where("email = ?", "bob@example.com").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApply_ActivatedBeforeCreated(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	next := time.Now().Add(30 * 24 * time.Hour)

	// Delivery order inverted: activation first, creation after.
	require.NoError(t, s.Apply(ctx, SubscriptionActivated{
		Provider:               types.PaymentProviderPayPal,
		ProviderSubscriptionID: "I-300",
		ProviderPlanID:         "P-PRO",
		Email:                  "carol@example.com",
		NextBillingTime:        next,
	}))
	require.NoError(t, s.Apply(ctx, SubscriptionCreated{
		Provider:               types.PaymentProviderPayPal,
		ProviderSubscriptionID: "I-300",
		ProviderPlanID:         "P-PRO",
		Email:                  "carol@example.com",
	}))

	// The late creation must not regress the active subscription.
	sub := loadSub(t, s, types.PaymentProviderPayPal, "I-300")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)

	u := loadUser(t, s, "carol@example.com")
	assert.True(t, u.Entitled(time.Now()))
}

func TestApply_ActivatedWithoutIdentityDropped(t *testing.T) {
	s := newTestService(t)
	err := s.Apply(context.Background(), SubscriptionActivated{
		Provider:               types.PaymentProviderPayPal,
		ProviderSubscriptionID: "I-unknown",
		NextBillingTime:        time.Now().Add(time.Hour),
	})
	// No matching row and no email to create one: swallowed, not an error.
	require.NoError(t, err)

	var count int64
	require.NoError(t, s.db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func activeSubscription(t *testing.T, s *Service, email, subID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, SubscriptionCreated{
		Provider:               types.PaymentProviderPayPal,
		ProviderSubscriptionID: subID,
		ProviderPlanID:         "P-PRO",
		Email:                  email,
	}))
	require.NoError(t, s.Apply(ctx, SubscriptionActivated{
		Provider:               types.PaymentProviderPayPal,
		ProviderSubscriptionID: subID,
		ProviderPlanID:         "P-PRO",
		NextBillingTime:        time.Now().Add(30 * 24 * time.Hour),
	}))
}

func TestApply_PaymentCompletedExtendsOnce(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	activeSubscription(t, s, "dave@example.com", "I-400")

	paidAt := time.Now()
	cmd := PaymentCompleted{
		Provider:           types.PaymentProviderPayPal,
		BillingAgreementID: "I-400",
		PaymentTime:        paidAt,
	}
	require.NoError(t, s.Apply(ctx, cmd))
	first := loadSub(t, s, types.PaymentProviderPayPal, "I-400")
	require.NotNil(t, first.CurrentPeriodEnd)
	assert.WithinDuration(t, paidAt.Add(30*24*time.Hour), *first.CurrentPeriodEnd, time.Second)

	// Replaying the same sale event changes nothing: the extension is
	// anchored at the payment time, not at the current period end.
	require.NoError(t, s.Apply(ctx, cmd))
	second := loadSub(t, s, types.PaymentProviderPayPal, "I-400")
	assert.WithinDuration(t, *first.CurrentPeriodEnd, *second.CurrentPeriodEnd, time.Second)
}

func TestApply_PaymentCompletedRecoversPastDue(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	activeSubscription(t, s, "erin@example.com", "I-500")

	require.NoError(t, s.Apply(ctx, PaymentFailed{
		Provider: types.PaymentProviderPayPal, ProviderSubscriptionID: "I-500",
	}))
	sub := loadSub(t, s, types.PaymentProviderPayPal, "I-500")
	require.Equal(t, types.SubscriptionStatusPastDue, sub.Status)
	require.Equal(t, 1, sub.FailedPaymentCount)

	require.NoError(t, s.Apply(ctx, PaymentCompleted{
		Provider:           types.PaymentProviderPayPal,
		BillingAgreementID: "I-500",
		PaymentTime:        time.Now(),
	}))
	sub = loadSub(t, s, types.PaymentProviderPayPal, "I-500")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.Zero(t, sub.FailedPaymentCount)
}

func TestApply_PaymentFailedThresholdExpires(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	activeSubscription(t, s, "frank@example.com", "I-600")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Apply(ctx, PaymentFailed{
			Provider: types.PaymentProviderPayPal, ProviderSubscriptionID: "I-600",
		}))
	}

	sub := loadSub(t, s, types.PaymentProviderPayPal, "I-600")
	assert.Equal(t, types.SubscriptionStatusExpired, sub.Status)

	u := loadUser(t, s, "frank@example.com")
	assert.Equal(t, types.PlanFree, u.Plan)
	assert.Nil(t, u.PlanExpiresAt)
	assert.Nil(t, u.PayPalSubscriptionID)
}

func TestApply_CancelledKeepsGracePeriod(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	activeSubscription(t, s, "grace@example.com", "I-700")

	require.NoError(t, s.Apply(ctx, SubscriptionCancelled{
		Provider: types.PaymentProviderPayPal, ProviderSubscriptionID: "I-700",
	}))

	// Access survives until the paid period runs out.
	u := loadUser(t, s, "grace@example.com")
	assert.True(t, u.Entitled(time.Now()))
	assert.True(t, u.CancelAtPeriodEnd)

	sub := loadSub(t, s, types.PaymentProviderPayPal, "I-700")
	assert.Equal(t, types.SubscriptionStatusCancelled, sub.Status)
	assert.True(t, sub.Valid(time.Now()))

	// A second cancellation (say the provider webhook after a user-initiated
	// cancel) is a replay.
	require.NoError(t, s.Apply(ctx, SubscriptionCancelled{
		Provider: types.PaymentProviderPayPal, ProviderSubscriptionID: "I-700",
	}))
}

func TestApply_ExpiredDowngradesImmediately(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	activeSubscription(t, s, "heidi@example.com", "I-800")

	require.NoError(t, s.Apply(ctx, SubscriptionExpired{
		Provider: types.PaymentProviderPayPal, ProviderSubscriptionID: "I-800",
	}))

	u := loadUser(t, s, "heidi@example.com")
	assert.Equal(t, types.PlanFree, u.Plan)
	assert.False(t, u.Entitled(time.Now()))
	assert.Nil(t, u.PayPalSubscriptionID)
}

func TestApply_UnknownSubscriptionSwallowed(t *testing.T) {
	s := newTestService(t)
	for _, cmd := range []Command{
		SubscriptionCancelled{Provider: types.PaymentProviderPayPal, ProviderSubscriptionID: "I-none"},
		SubscriptionExpired{Provider: types.PaymentProviderPayPal, ProviderSubscriptionID: "I-none"},
		PaymentFailed{Provider: types.PaymentProviderPayPal, ProviderSubscriptionID: "I-none"},
		PaymentCompleted{Provider: types.PaymentProviderPayPal, BillingAgreementID: "I-none"},
	} {
		assert.NoError(t, s.Apply(context.Background(), cmd), cmd.CommandType())
	}
}

func TestResolve_LazyExpiry(t *testing.T) {
	s := newTestService(t)
	past := time.Now().Add(-time.Hour)
	subID := "I-900"
	u := &models.User{
		ID:                   tool.GenerateUUIDV7(),
		Email:                "ivan@example.com",
		Plan:                 types.PlanPro,
		PlanExpiresAt:        &past,
		PayPalSubscriptionID: &subID,
		Currency:             "USD",
	}
	require.NoError(t, s.db.Create(u).Error)

	got, err := s.Resolve(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanFree, got.Plan)
	assert.Nil(t, got.PlanExpiresAt)

	// The stored row is corrected in the background.
	require.Eventually(t, func() bool {
		var stored models.User
		if err := s.db.Where("id = ?", u.ID).First(&stored).Error; err != nil {
			return false
		}
		return stored.Plan == types.PlanFree && stored.PayPalSubscriptionID == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResolve_ActivePlanUntouched(t *testing.T) {
	s := newTestService(t)
	future := time.Now().Add(time.Hour)
	u := &models.User{
		ID:            tool.GenerateUUIDV7(),
		Email:         "judy@example.com",
		Plan:          types.PlanPro,
		PlanExpiresAt: &future,
		Currency:      "USD",
	}
	require.NoError(t, s.db.Create(u).Error)

	got, err := s.Resolve(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanPro, got.Plan)

	info, err := s.Status(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, info.HasAccess)
	assert.Equal(t, types.PlanPro, info.Plan)
}

func TestStatus_UnknownUser(t *testing.T) {
	s := newTestService(t)
	_, err := s.Status(context.Background(), tool.GenerateUUIDV7())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

type stubCanceller struct {
	calls []string
	err   error
}

func (c *stubCanceller) CancelSubscription(_ context.Context, id string) error {
	c.calls = append(c.calls, id)
	return c.err
}

func TestCancel_CallsProviderAndFlagsRows(t *testing.T) {
	s := newTestService(t)
	activeSubscription(t, s, "kate@example.com", "I-1000")
	stub := &stubCanceller{}
	s.RegisterCanceller(types.PaymentProviderPayPal, stub)

	u := loadUser(t, s, "kate@example.com")
	endsAt, err := s.Cancel(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, endsAt)
	assert.Equal(t, []string{"I-1000"}, stub.calls)

	sub := loadSub(t, s, types.PaymentProviderPayPal, "I-1000")
	assert.Equal(t, types.SubscriptionStatusCancelled, sub.Status)
}

func TestCancel_ProviderFailureLeavesStateUntouched(t *testing.T) {
	s := newTestService(t)
	activeSubscription(t, s, "leo@example.com", "I-1100")
	stub := &stubCanceller{err: errors.New("upstream 500")}
	s.RegisterCanceller(types.PaymentProviderPayPal, stub)

	u := loadUser(t, s, "leo@example.com")
	_, err := s.Cancel(context.Background(), u.ID)
	require.Error(t, err)

	sub := loadSub(t, s, types.PaymentProviderPayPal, "I-1100")
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
}

func TestCancel_FreeUser(t *testing.T) {
	s := newTestService(t)
	u := &models.User{ID: tool.GenerateUUIDV7(), Email: "mia@example.com", Plan: types.PlanFree, Currency: "USD"}
	require.NoError(t, s.db.Create(u).Error)

	_, err := s.Cancel(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestSweepExpired(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	activeSubscription(t, s, "nina@example.com", "I-1200")

	// Force the period into the past.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.db.Model(&models.User{}).
		Where("email = ?", "nina@example.com").
		Update("plan_expires_at", past).Error)
	require.NoError(t, s.db.Model(&models.Subscription{}).
		Where("provider_subscription_id = ?", "I-1200").
		Update("current_period_end", past).Error)

	swept, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	u := loadUser(t, s, "nina@example.com")
	assert.Equal(t, types.PlanFree, u.Plan)
	sub := loadSub(t, s, types.PaymentProviderPayPal, "I-1200")
	assert.Equal(t, types.SubscriptionStatusExpired, sub.Status)
}
