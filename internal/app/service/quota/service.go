package quota

import (
	"context"
	"fmt"

	models "github.com/bossbuddy/billing/internal/models"
	subscription "github.com/bossbuddy/billing/internal/app/service/subscription"
	usage "github.com/bossbuddy/billing/internal/app/service/usage"
	"github.com/bossbuddy/billing/pkg/config"
	"github.com/bossbuddy/billing/pkg/logctx"
	types "github.com/bossbuddy/billing/pkg/types"

	"go.uber.org/zap"
)

// DenyReason says why a rewrite was not admitted.
type DenyReason string

const (
	DenyUpgradeRequired   DenyReason = "upgrade_required"
	DenyDailyLimitReached DenyReason = "daily_limit_reached"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Plan    types.Plan
	// Remaining is the allowance left today after this request; -1 means
	// unlimited.
	Remaining int64
}

// Resolver is the slice of the subscription service quota needs.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (*models.User, error)
}

type Service struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	users   Resolver
	usage   *usage.Service
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, subSvc *subscription.Service, usageSvc *usage.Service) *Service {
	return &Service{cfg: cfg, log: log, users: subSvc, usage: usageSvc}
}

func (s *Service) dailyLimit() int64 {
	if s.cfg.Quota.FreeDailyLimit > 0 {
		return int64(s.cfg.Quota.FreeDailyLimit)
	}
	return 3
}

// Admit decides whether the user may run one rewrite with the given tone.
// Entitlement is evaluated lazily, so a lapsed pro plan is held to the free
// rules on the very next request. Admission does not reserve quota; the
// usage row is written only after the rewrite succeeds.
func (s *Service) Admit(ctx context.Context, userID string, tone types.Tone) (*Decision, error) {
	user, err := s.users.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	plan := user.Plan

	if !plan.Covers(tone.RequiredPlan()) {
		return &Decision{Allowed: false, Reason: DenyUpgradeRequired, Plan: plan}, nil
	}
	if plan.Paid() {
		return &Decision{Allowed: true, Plan: plan, Remaining: -1}, nil
	}

	used, err := s.usage.CountToday(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count daily usage: %w", err)
	}
	limit := s.dailyLimit()
	if used >= limit {
		logctx.FromCtx(ctx, s.log).Infow("daily limit reached", "user_id", userID, "used", used)
		return &Decision{Allowed: false, Reason: DenyDailyLimitReached, Plan: plan}, nil
	}
	return &Decision{Allowed: true, Plan: plan, Remaining: limit - used - 1}, nil
}
