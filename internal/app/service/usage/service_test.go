package usage

import (
	"context"
	"strings"
	"testing"
	"time"

	models "github.com/bossbuddy/billing/internal/models"
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
	require.NoError(t, db.AutoMigrate(&models.UsageLog{}))
	return New(db, zap.NewNop().Sugar())
}

func TestRecordTruncatesMessages(t *testing.T) {
	s := newTestService(t)
	long := strings.Repeat("a", 2000)

	require.NoError(t, s.Record(context.Background(), "user-1", types.ToneFormal, long, long))

	var row models.UsageLog
	require.NoError(t, s.db.First(&row).Error)
	assert.Len(t, row.OriginalMessage, maxStoredMessageLen)
	assert.Len(t, row.RewrittenMessage, maxStoredMessageLen)
	assert.Equal(t, "rewrite", row.Action)
	assert.Equal(t, "formal", row.Tone)
}

func TestCountSince(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(ctx, "user-1", types.ToneFormal, "in", "out"))
	}
	require.NoError(t, s.Record(ctx, "user-2", types.ToneFriendly, "in", "out"))

	n, err := s.CountSince(ctx, "user-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// Rows before the cutoff are not counted.
	n, err = s.CountSince(ctx, "user-1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// Local date is Jan 2 but the UTC day is still Jan 1.
	at := time.Date(2026, 1, 2, 6, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), UTCMidnight(at))

	at = time.Date(2026, 1, 2, 12, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), UTCMidnight(at))
}

func TestGetStats(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, "user-1", types.ToneFormal, "in", "out"))
	require.NoError(t, s.Record(ctx, "user-1", types.ToneFormal, "in", "out"))
	require.NoError(t, s.Record(ctx, "user-1", types.ToneUrgent, "in", "out"))

	stats, err := s.GetStats(ctx, "user-1", "week")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Tones["formal"])
	assert.Equal(t, int64(1), stats.Tones["urgent"])

	_, err = s.GetStats(ctx, "user-1", "year")
	assert.Error(t, err)
}
