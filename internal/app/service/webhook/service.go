package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	eventlog "github.com/bossbuddy/billing/internal/app/service/eventlog"
	subscription "github.com/bossbuddy/billing/internal/app/service/subscription"
	"github.com/bossbuddy/billing/pkg/config"
	"github.com/bossbuddy/billing/pkg/logctx"
	types "github.com/bossbuddy/billing/pkg/types"

	"go.uber.org/zap"
)

var (
	ErrUnknownProvider  = errors.New("unknown payment provider")
	ErrBadSignature     = errors.New("webhook signature verification failed")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Verifier authenticates a raw delivery against provider headers.
type Verifier interface {
	VerifySignature(headers http.Header, body []byte) error
}

// Applier is the slice of the subscription service the pipeline needs.
type Applier interface {
	Apply(ctx context.Context, cmd subscription.Command) error
}

type parseFunc func(body []byte) (eventID, eventType string, cmd subscription.Command, err error)

type Service struct {
	cfg       *config.Config
	log       *zap.SugaredLogger
	events    *eventlog.Service
	subSvc    Applier
	verifiers map[types.PaymentProvider]Verifier
	parsers   map[types.PaymentProvider]parseFunc
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, events *eventlog.Service, subSvc *subscription.Service) *Service {
	return &Service{
		cfg:    cfg,
		log:    log,
		events: events,
		subSvc: subSvc,
		verifiers: map[types.PaymentProvider]Verifier{},
		parsers: map[types.PaymentProvider]parseFunc{
			types.PaymentProviderPayPal: parsePayPalEvent,
			types.PaymentProviderPaddle: parsePaddleEvent,
		},
	}
}

// RegisterVerifier wires a provider signature verifier. Called once at
// startup; not safe for concurrent use afterwards.
func (s *Service) RegisterVerifier(provider types.PaymentProvider, v Verifier) {
	s.verifiers[provider] = v
}

// HandleDelivery runs the full ingestion pipeline for one webhook request:
// verify the signature, parse, persist the event, apply the state change,
// then mark the event processed. The event row is inserted before any state
// is touched, so a crash mid-apply leaves a replayable record, and the
// unique (provider, event_id) index turns redelivery into a no-op.
func (s *Service) HandleDelivery(ctx context.Context, provider types.PaymentProvider, headers http.Header, body []byte, traceID string) error {
	log := logctx.FromCtx(ctx, s.log).With("provider", provider)

	verifier, ok := s.verifiers[provider]
	if !ok {
		return ErrUnknownProvider
	}
	if err := verifier.VerifySignature(headers, body); err != nil {
		log.Warnw("rejected webhook delivery", "error", err)
		return ErrBadSignature
	}

	parse := s.parsers[provider]
	eventID, eventType, cmd, err := parse(body)
	if err != nil {
		return err
	}

	ev, created, err := s.events.Insert(ctx, provider, eventID, eventType, body, traceID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}
	if !created && ev.Processed {
		log.Infow("duplicate delivery acknowledged", "event_id", eventID, "event_type", eventType)
		return nil
	}

	return s.process(ctx, ev.ID, eventID, eventType, cmd, log)
}

func (s *Service) process(ctx context.Context, id, eventID, eventType string, cmd subscription.Command, log *zap.SugaredLogger) error {
	if cmd == nil {
		// Event types outside the state machine are acknowledged so the
		// provider stops redelivering them; the stored row keeps the payload.
		log.Infow("unhandled event type acknowledged", "event_id", eventID, "event_type", eventType)
		s.markProcessed(ctx, id, map[string]string{"status": "ignored"})
		return nil
	}

	if err := s.subSvc.Apply(ctx, cmd); err != nil {
		log.Errorw("failed to apply webhook event",
			"event_id", eventID, "event_type", eventType, "error", err)
		if merr := s.events.MarkFailed(ctx, id, err); merr != nil {
			log.Errorf("failed to record event failure: %v", merr)
		}
		return fmt.Errorf("failed to process event %s: %w", eventID, err)
	}

	s.markProcessed(ctx, id, map[string]string{"status": "applied", "command": cmd.CommandType()})
	return nil
}

// markProcessed runs under its own deadline: the state change already
// committed, so a slow bookkeeping write must not fail the delivery. Worst
// case the event is reapplied by the retry pass, which is idempotent.
func (s *Service) markProcessed(ctx context.Context, id string, result any) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MarkProcessedTimeout())
	defer cancel()
	if err := s.events.MarkProcessed(mctx, id, result); err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to mark event processed: %v", err)
	}
}

// RetryUnprocessed reapplies events whose first apply never completed,
// skipping anything younger than a minute so in-flight deliveries are left
// alone. Returns how many events were successfully applied this pass.
func (s *Service) RetryUnprocessed(ctx context.Context, limit int) (int, error) {
	log := logctx.FromCtx(ctx, s.log)

	rows, err := s.events.UnprocessedBefore(ctx, time.Now().Add(-time.Minute), limit)
	if err != nil {
		return 0, err
	}

	var applied int
	for _, ev := range rows {
		parse, ok := s.parsers[ev.Provider]
		if !ok {
			continue
		}
		_, _, cmd, perr := parse(ev.RawPayload)
		if perr != nil {
			log.Warnw("skipping unparseable stored event", "event_id", ev.EventID, "error", perr)
			s.markProcessed(ctx, ev.ID, map[string]string{"status": "unparseable"})
			continue
		}
		if err := s.process(ctx, ev.ID, ev.EventID, ev.EventType, cmd, log); err != nil {
			log.Warnw("retry apply failed", "event_id", ev.EventID, "error", err)
			continue
		}
		applied++
	}

	log.Infow("webhook retry pass finished", "candidates", len(rows), "applied", applied)
	return applied, nil
}
