package usage

import (
	"context"
	"fmt"
	"time"

	models "github.com/bossbuddy/billing/internal/models"
	"github.com/bossbuddy/billing/pkg/logctx"
	"github.com/bossbuddy/billing/pkg/tool"
	types "github.com/bossbuddy/billing/pkg/types"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxStoredMessageLen bounds what gets persisted per message body.
const maxStoredMessageLen = 500

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

func truncate(s string) string {
	if len(s) > maxStoredMessageLen {
		return s[:maxStoredMessageLen]
	}
	return s
}

// Record appends one usage row. Called only after the rewrite succeeded, so
// failed generations never consume quota.
func (s *Service) Record(ctx context.Context, userID string, tone types.Tone, original, rewritten string) error {
	row := &models.UsageLog{
		ID:               tool.GenerateUUIDV7(),
		UserID:           userID,
		Action:           "rewrite",
		Tone:             string(tone),
		OriginalMessage:  truncate(original),
		RewrittenMessage: truncate(rewritten),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// CountSince counts a user's rewrites at or after the cutoff.
func (s *Service) CountSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.UsageLog{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return n, nil
}

// UTCMidnight is the start of the current day in UTC, the boundary at which
// daily quotas reset.
func UTCMidnight(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CountToday counts rewrites since the daily reset.
func (s *Service) CountToday(ctx context.Context, userID string) (int64, error) {
	return s.CountSince(ctx, userID, UTCMidnight(time.Now()))
}

type Stats struct {
	Period string         `json:"period"`
	Total  int64          `json:"total"`
	Tones  map[string]int64 `json:"tones"`
}

// GetStats aggregates a user's rewrites over "day", "week" or "month".
func (s *Service) GetStats(ctx context.Context, userID, period string) (*Stats, error) {
	now := time.Now()
	var since time.Time
	switch period {
	case "day", "":
		period = "day"
		since = UTCMidnight(now)
	case "week":
		since = now.Add(-7 * 24 * time.Hour)
	case "month":
		since = now.Add(-30 * 24 * time.Hour)
	default:
		return nil, fmt.Errorf("unknown period: %s", period)
	}

	type toneRow struct {
		Tone  string
		Count int64
	}
	var rows []toneRow
	if err := s.db.WithContext(ctx).Model(&models.UsageLog{}).
		Select("tone, count(*) as count").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("tone").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}

	out := &Stats{Period: period, Tones: map[string]int64{}}
	for _, r := range rows {
		out.Tones[r.Tone] = r.Count
		out.Total += r.Count
	}
	logctx.FromCtx(ctx, s.log).Debugw("usage stats computed", "user_id", userID, "period", period, "total", out.Total)
	return out, nil
}
