package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	models "github.com/bossbuddy/billing/internal/models"
	"github.com/bossbuddy/billing/pkg/tool"
	types "github.com/bossbuddy/billing/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns the durable webhook event log. Inserts are synchronous:
// the webhook handler must not acknowledge a delivery whose record could
// still be lost.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Insert records an inbound event before it is processed. The second return
// is false when the (provider, event_id) pair already exists, i.e. the
// delivery is a replay.
func (s *Service) Insert(ctx context.Context, provider types.PaymentProvider, eventID, eventType string, rawBody []byte, traceID string) (*models.WebhookEvent, bool, error) {
	ev := &models.WebhookEvent{
		ID:         tool.GenerateUUIDV7(),
		Provider:   provider,
		EventID:    eventID,
		EventType:  eventType,
		RawPayload: datatypes.JSON(rawBody),
		TraceID:    traceID,
		ReceivedAt: time.Now(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
		DoNothing: true,
	}).Create(ev)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to insert webhook event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var existing models.WebhookEvent
		if err := s.db.WithContext(ctx).
			Where("provider = ? AND event_id = ?", provider, eventID).
			First(&existing).Error; err != nil {
			return nil, false, fmt.Errorf("failed to load duplicate event: %w", err)
		}
		return &existing, false, nil
	}
	return ev, true, nil
}

// MarkProcessed flags an event done and stores the apply outcome. This runs
// after the state change committed, so a failure here only costs a redundant
// reprocess on the next retry pass.
func (s *Service) MarkProcessed(ctx context.Context, id string, result any) error {
	updates := map[string]any{"processed": true}
	if result != nil {
		raw, err := json.Marshal(result)
		if err == nil {
			j := datatypes.JSON(raw)
			updates["result"] = &j
		}
	}
	if err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// MarkFailed leaves the event unprocessed and records the error for the
// retry pass and for operators.
func (s *Service) MarkFailed(ctx context.Context, id string, cause error) error {
	raw, _ := json.Marshal(map[string]string{"error": cause.Error()})
	j := datatypes.JSON(raw)
	if err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", id).Update("result", &j).Error; err != nil {
		return fmt.Errorf("failed to record event failure: %w", err)
	}
	return nil
}

// Get loads one event by its internal id.
func (s *Service) Get(ctx context.Context, id string) (*models.WebhookEvent, error) {
	var ev models.WebhookEvent
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("event not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	return &ev, nil
}

// UnprocessedBefore lists events still waiting for a successful apply,
// oldest first, capped at limit. The cutoff keeps just-arrived events out
// of the retry pass while their first apply may still be in flight.
func (s *Service) UnprocessedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*models.WebhookEvent
	if err := s.db.WithContext(ctx).
		Where("processed = ? AND received_at < ?", false, cutoff).
		Order("received_at asc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list unprocessed events: %w", err)
	}
	return rows, nil
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

type ScanEventsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanEventsResponse struct {
	Items []*models.WebhookEvent `json:"items"`
	Total int64                  `json:"total"`
}

// ScanEvents implements the paginated admin listing with filters.
func (s *Service) ScanEvents(ctx context.Context, req *ScanEventsRequest) (*ScanEventsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.WebhookEvent{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	var rows []*models.WebhookEvent

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return &ScanEventsResponse{Items: rows, Total: total}, nil
}
