package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "github.com/bossbuddy/billing/internal/models"
	"github.com/bossbuddy/billing/pkg/config"
	"github.com/bossbuddy/billing/pkg/logctx"
	"github.com/bossbuddy/billing/pkg/tool"
	types "github.com/bossbuddy/billing/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderCanceller cancels an agreement on the provider's side. Network
// clients for PayPal and Paddle satisfy this; tests inject stubs.
type ProviderCanceller interface {
	CancelSubscription(ctx context.Context, providerSubscriptionID string) error
}

type Service struct {
	cfg        *config.Config
	db         *gorm.DB
	log        *zap.SugaredLogger
	cancellers map[types.PaymentProvider]ProviderCanceller
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, log: log, cancellers: map[types.PaymentProvider]ProviderCanceller{}}
}

// RegisterCanceller wires a provider cancellation client. Called once at
// startup; not safe for concurrent use afterwards.
func (s *Service) RegisterCanceller(provider types.PaymentProvider, c ProviderCanceller) {
	s.cancellers[provider] = c
}

// errPreconditionNotMet marks transitions whose target row does not exist
// (or is in the wrong state). Apply logs and swallows these: the event most
// likely races another delivery that has not been processed yet, and strict
// rejection would only make the provider retry a permanently failing event.
var errPreconditionNotMet = errors.New("transition precondition not met")

// Apply runs one command against the entitlement store inside a single
// transaction. Every transition is idempotent: replaying a command leaves
// the rows unchanged the second time.
func (s *Service) Apply(ctx context.Context, cmd Command) error {
	log := logctx.FromCtx(ctx, s.log)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch c := cmd.(type) {
		case SubscriptionCreated:
			return s.applyCreated(ctx, tx, c)
		case SubscriptionActivated:
			return s.applyActivated(ctx, tx, c)
		case PaymentCompleted:
			return s.applyPaymentCompleted(ctx, tx, c)
		case SubscriptionCancelled:
			return s.applyCancelled(ctx, tx, c)
		case SubscriptionExpired:
			return s.applyExpired(ctx, tx, c)
		case PaymentFailed:
			return s.applyPaymentFailed(ctx, tx, c)
		default:
			return fmt.Errorf("unhandled command type: %s", cmd.CommandType())
		}
	})

	if errors.Is(err, errPreconditionNotMet) {
		log.Warnw("transition dropped, precondition not met",
			"command", cmd.CommandType(), "provider", cmd.CommandProvider())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", cmd.CommandType(), err)
	}
	return nil
}

// providerIDColumn returns the users column that stores the provider's
// subscription id.
func providerIDColumn(provider types.PaymentProvider) string {
	if provider == types.PaymentProviderPaddle {
		return "paddle_subscription_id"
	}
	return "paypal_subscription_id"
}

// upsertUserByEmail creates or updates the user row keyed by the email
// unique constraint and returns the stored row. The conflict clause keeps
// the write atomic; no read-then-write window.
func (s *Service) upsertUserByEmail(ctx context.Context, tx *gorm.DB, email string, provider types.PaymentProvider, providerSubID string, plan types.Plan, currency string) (*models.User, error) {
	assignments := map[string]any{
		providerIDColumn(provider): providerSubID,
		"plan":                     plan,
	}
	u := &models.User{
		ID:       tool.GenerateUUIDV7(),
		Email:    email,
		Plan:     plan,
		Currency: currency,
	}
	if currency == "" {
		u.Currency = "USD"
	}
	switch provider {
	case types.PaymentProviderPaddle:
		u.PaddleSubscriptionID = &providerSubID
	default:
		u.PayPalSubscriptionID = &providerSubID
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(u).Error; err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	// Re-read for the canonical id when the row already existed.
	var stored models.User
	if err := tx.WithContext(ctx).Where("email = ?", email).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load upserted user: %w", err)
	}
	return &stored, nil
}

func (s *Service) findSubscription(ctx context.Context, tx *gorm.DB, provider types.PaymentProvider, providerSubID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.WithContext(ctx).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errPreconditionNotMet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (s *Service) applyCreated(ctx context.Context, tx *gorm.DB, c SubscriptionCreated) error {
	plan := types.PlanPro
	if item, err := s.cfg.GetPlanItemByProviderPlanID(c.Provider, c.ProviderPlanID); err == nil {
		plan = item.Plan
	}
	if c.Email == "" {
		return errPreconditionNotMet
	}

	user, err := s.upsertUserByEmail(ctx, tx, c.Email, c.Provider, c.ProviderSubscriptionID, plan, c.Currency)
	if err != nil {
		return err
	}

	sub := &models.Subscription{
		ID:                     tool.GenerateUUIDV7(),
		UserID:                 user.ID,
		Provider:               c.Provider,
		ProviderSubscriptionID: c.ProviderSubscriptionID,
		Status:                 types.SubscriptionStatusPending,
		Plan:                   plan,
		Currency:               c.Currency,
		AmountCents:            c.AmountCents,
	}
	// Replays and created-after-activated races hit the unique index and
	// become no-ops; the existing row wins.
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_subscription_id"}},
		DoNothing: true,
	}).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	s.auditLog(ctx, user.ID, types.SubscriptionChangeReasonCreated, nil, sub)
	return nil
}

func (s *Service) applyActivated(ctx context.Context, tx *gorm.DB, c SubscriptionActivated) error {
	plan := types.PlanPro
	if item, err := s.cfg.GetPlanItemByProviderPlanID(c.Provider, c.ProviderPlanID); err == nil {
		plan = item.Plan
	}

	sub, err := s.findSubscription(ctx, tx, c.Provider, c.ProviderSubscriptionID)
	var before *models.Subscription
	if errors.Is(err, errPreconditionNotMet) {
		// Activation arrived before creation. Upsert the whole pair so the
		// final state matches the in-order delivery.
		if c.Email == "" {
			return errPreconditionNotMet
		}
		user, uerr := s.upsertUserByEmail(ctx, tx, c.Email, c.Provider, c.ProviderSubscriptionID, plan, "")
		if uerr != nil {
			return uerr
		}
		sub = &models.Subscription{
			ID:                     tool.GenerateUUIDV7(),
			UserID:                 user.ID,
			Provider:               c.Provider,
			ProviderSubscriptionID: c.ProviderSubscriptionID,
			Plan:                   plan,
		}
	} else if err != nil {
		return err
	} else {
		cp := *sub
		before = &cp
	}

	start := c.StatusUpdateTime
	if start.IsZero() {
		start = time.Now()
	}
	sub.Status = types.SubscriptionStatusActive
	sub.CurrentPeriodStart = &start
	end := c.NextBillingTime
	if end.IsZero() {
		end = start.Add(s.cfg.BillingCycle(c.Provider, c.ProviderPlanID))
	}
	sub.CurrentPeriodEnd = &end
	sub.CancelAtPeriodEnd = false
	sub.FailedPaymentCount = 0
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	updates := map[string]any{
		"plan":                       sub.Plan,
		"plan_expires_at":            end,
		providerIDColumn(c.Provider): c.ProviderSubscriptionID,
		"cancel_at_period_end":       false,
	}
	if err := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", sub.UserID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update user entitlement: %w", err)
	}

	s.auditLog(ctx, sub.UserID, types.SubscriptionChangeReasonActivated, before, sub)
	return nil
}

func (s *Service) applyPaymentCompleted(ctx context.Context, tx *gorm.DB, c PaymentCompleted) error {
	if c.BillingAgreementID == "" {
		return errPreconditionNotMet
	}
	sub, err := s.findSubscription(ctx, tx, c.Provider, c.BillingAgreementID)
	if err != nil {
		return err
	}
	// Payments only land on subscriptions that are (or recently were)
	// collecting; a completed payment also recovers a past_due agreement.
	if sub.Status != types.SubscriptionStatusActive && sub.Status != types.SubscriptionStatusPastDue {
		return errPreconditionNotMet
	}
	before := *sub

	paidAt := c.PaymentTime
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	cycle := s.cfg.BillingCycle(c.Provider, "")
	// Anchor the extension at the payment time, never at the current end:
	// max(end, paidAt+cycle) gives the same result however often the same
	// sale event is applied.
	newEnd := paidAt.Add(cycle)
	if sub.CurrentPeriodEnd == nil || newEnd.After(*sub.CurrentPeriodEnd) {
		sub.CurrentPeriodEnd = &newEnd
	}
	sub.Status = types.SubscriptionStatusActive
	sub.FailedPaymentCount = 0
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to extend subscription period: %w", err)
	}

	if err := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", sub.UserID).
		Update("plan_expires_at", sub.CurrentPeriodEnd).Error; err != nil {
		return fmt.Errorf("failed to extend user entitlement: %w", err)
	}

	s.auditLog(ctx, sub.UserID, types.SubscriptionChangeReasonRenewal, &before, sub)
	return nil
}

func (s *Service) applyCancelled(ctx context.Context, tx *gorm.DB, c SubscriptionCancelled) error {
	sub, err := s.findSubscription(ctx, tx, c.Provider, c.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if !sub.Status.Billable() {
		// Cancelling an already terminal subscription is a replay.
		return nil
	}
	before := *sub

	sub.Status = types.SubscriptionStatusCancelled
	sub.CancelAtPeriodEnd = true
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to mark subscription cancelled: %w", err)
	}
	// Grace period: the plan stays until plan_expires_at passes.
	if err := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", sub.UserID).
		Update("cancel_at_period_end", true).Error; err != nil {
		return fmt.Errorf("failed to flag user cancellation: %w", err)
	}

	s.auditLog(ctx, sub.UserID, types.SubscriptionChangeReasonCancelled, &before, sub)
	return nil
}

func (s *Service) applyExpired(ctx context.Context, tx *gorm.DB, c SubscriptionExpired) error {
	sub, err := s.findSubscription(ctx, tx, c.Provider, c.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == types.SubscriptionStatusExpired {
		return nil
	}
	before := *sub

	sub.Status = types.SubscriptionStatusExpired
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to mark subscription expired: %w", err)
	}
	if err := s.downgradeUserTx(ctx, tx, sub.UserID); err != nil {
		return err
	}

	s.auditLog(ctx, sub.UserID, types.SubscriptionChangeReasonExpired, &before, sub)
	return nil
}

func (s *Service) applyPaymentFailed(ctx context.Context, tx *gorm.DB, c PaymentFailed) error {
	sub, err := s.findSubscription(ctx, tx, c.Provider, c.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != types.SubscriptionStatusActive && sub.Status != types.SubscriptionStatusPastDue {
		return errPreconditionNotMet
	}
	before := *sub

	sub.FailedPaymentCount++
	threshold := s.cfg.PaymentFailureThreshold
	if threshold <= 0 {
		threshold = 3
	}
	if sub.FailedPaymentCount >= threshold {
		sub.Status = types.SubscriptionStatusExpired
	} else {
		sub.Status = types.SubscriptionStatusPastDue
	}
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to record payment failure: %w", err)
	}
	if sub.Status == types.SubscriptionStatusExpired {
		if err := s.downgradeUserTx(ctx, tx, sub.UserID); err != nil {
			return err
		}
	}

	s.auditLog(ctx, sub.UserID, types.SubscriptionChangeReasonPaymentFailed, &before, sub)
	return nil
}

// downgradeUserTx drops a user to free and clears provider linkage.
func (s *Service) downgradeUserTx(ctx context.Context, tx *gorm.DB, userID string) error {
	updates := map[string]any{
		"plan":                   types.PlanFree,
		"plan_expires_at":        nil,
		"paypal_subscription_id": nil,
		"paddle_subscription_id": nil,
		"cancel_at_period_end":   false,
	}
	if err := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to downgrade user: %w", err)
	}
	return nil
}

// auditLog writes a change record asynchronously; errors are logged, never
// surfaced, and the write happens outside the caller's transaction.
func (s *Service) auditLog(ctx context.Context, userID string, reason types.SubscriptionChangeReason, before, after *models.Subscription) {
	var b, a *models.Subscription
	if before != nil {
		cp := *before
		b = &cp
	}
	if after != nil {
		cp := *after
		a = &cp
	}
	go func() {
		log := &models.SubscriptionLog{
			ID:     tool.GenerateUUIDV7(),
			UserID: userID,
			Reason: reason,
			Before: datatypes.NewJSONType(b),
			After:  datatypes.NewJSONType(a),
			Extra:  datatypes.JSONMap{},
		}
		if err := s.db.Save(log).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save subscription log: %v", err)
		}
	}()
}
