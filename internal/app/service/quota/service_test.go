package quota

import (
	"context"
	"testing"
	"time"

	models "github.com/bossbuddy/billing/internal/models"
	usage "github.com/bossbuddy/billing/internal/app/service/usage"
	"github.com/bossbuddy/billing/pkg/config"
	types "github.com/bossbuddy/billing/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubResolver struct {
	user *models.User
	err  error
}

func (r *stubResolver) Resolve(context.Context, string) (*models.User, error) {
	return r.user, r.err
}

func newTestService(t *testing.T, user *models.User) (*Service, *usage.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UsageLog{}))

	log := zap.NewNop().Sugar()
	usageSvc := usage.New(db, log)
	cfg := &config.Config{}
	cfg.Quota.FreeDailyLimit = 3
	return &Service{cfg: cfg, log: log, users: &stubResolver{user: user}, usage: usageSvc}, usageSvc, db
}

func freeUser() *models.User {
	return &models.User{ID: "user-free", Plan: types.PlanFree}
}

func proUser() *models.User {
	exp := time.Now().Add(24 * time.Hour)
	return &models.User{ID: "user-pro", Plan: types.PlanPro, PlanExpiresAt: &exp}
}

func TestAdmit_FreeUserWithinLimit(t *testing.T) {
	s, usageSvc, _ := newTestService(t, freeUser())
	ctx := context.Background()

	require.NoError(t, usageSvc.Record(ctx, "user-free", types.ToneFormal, "in", "out"))

	d, err := s.Admit(ctx, "user-free", types.ToneFormal)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Remaining)
}

func TestAdmit_FreeUserAtLimit(t *testing.T) {
	s, usageSvc, _ := newTestService(t, freeUser())
	ctx := context.Background()

	// Exactly at the limit: the third row consumed the last slot.
	for i := 0; i < 3; i++ {
		require.NoError(t, usageSvc.Record(ctx, "user-free", types.ToneFormal, "in", "out"))
	}

	d, err := s.Admit(ctx, "user-free", types.ToneFormal)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, DenyDailyLimitReached, d.Reason)
	assert.Equal(t, types.PlanFree, d.Plan)
}

func TestAdmit_FreeUserProTone(t *testing.T) {
	s, _, _ := newTestService(t, freeUser())

	d, err := s.Admit(context.Background(), "user-free", types.ToneUrgent)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, DenyUpgradeRequired, d.Reason)
}

func TestAdmit_ProUserUnlimited(t *testing.T) {
	s, usageSvc, _ := newTestService(t, proUser())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, usageSvc.Record(ctx, "user-pro", types.ToneUrgent, "in", "out"))
	}

	d, err := s.Admit(ctx, "user-pro", types.ToneUrgent)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(-1), d.Remaining)
}

func TestAdmit_YesterdayUsageDoesNotCount(t *testing.T) {
	s, usageSvc, db := newTestService(t, freeUser())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, usageSvc.Record(ctx, "user-free", types.ToneFormal, "in", "out"))
	}
	// Shift all rows to before the UTC reset.
	yesterday := usage.UTCMidnight(time.Now()).Add(-time.Hour)
	require.NoError(t, db.Model(&models.UsageLog{}).
		Where("user_id = ?", "user-free").
		Update("created_at", yesterday).Error)

	d, err := s.Admit(ctx, "user-free", types.ToneFormal)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(2), d.Remaining)
}
