package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	quota "github.com/bossbuddy/billing/internal/app/service/quota"
	usage "github.com/bossbuddy/billing/internal/app/service/usage"
	"github.com/bossbuddy/billing/internal/platform/generation"
	"github.com/bossbuddy/billing/pkg/config"
	"github.com/bossbuddy/billing/pkg/logctx"
	types "github.com/bossbuddy/billing/pkg/types"

	"go.uber.org/zap"
)

// maxMessageLen bounds the accepted input message.
const maxMessageLen = 4000

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message too long")
	ErrInvalidTone    = errors.New("unknown tone")
)

// DeniedError carries the quota decision so handlers can shape the 403.
type DeniedError struct {
	Decision *quota.Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rewrite denied: %s", e.Decision.Reason)
}

// Generator produces the rewritten message; the completion client satisfies
// this, tests inject stubs.
type Generator interface {
	Rewrite(ctx context.Context, message string, tone types.Tone) (string, error)
}

type Service struct {
	cfg   *config.Config
	log   *zap.SugaredLogger
	quota *quota.Service
	usage *usage.Service
	gen   Generator
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, quotaSvc *quota.Service, usageSvc *usage.Service, gen *generation.Client) *Service {
	return &Service{cfg: cfg, log: log, quota: quotaSvc, usage: usageSvc, gen: gen}
}

type Result struct {
	Rewritten string
	// Remaining is the free allowance left today; -1 for paid plans.
	Remaining int64
}

// Rewrite validates the request, runs the quota admission check, calls the
// generation backend and records usage. Usage is charged only on success:
// an upstream failure costs the user nothing.
func (s *Service) Rewrite(ctx context.Context, userID, message string, tone types.Tone) (*Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if len(message) > maxMessageLen {
		return nil, ErrMessageTooLong
	}
	if !tone.Valid() {
		return nil, ErrInvalidTone
	}

	decision, err := s.quota.Admit(ctx, userID, tone)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &DeniedError{Decision: decision}
	}

	rewritten, err := s.gen.Rewrite(ctx, message, tone)
	if err != nil {
		return nil, err
	}

	if err := s.usage.Record(ctx, userID, tone, message, rewritten); err != nil {
		// The user already has their rewrite; losing the usage row only
		// under-counts today's quota.
		logctx.FromCtx(ctx, s.log).Errorf("failed to record usage: %v", err)
	}

	return &Result{Rewritten: rewritten, Remaining: decision.Remaining}, nil
}
