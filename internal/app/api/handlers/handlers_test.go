package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	eventlog "github.com/bossbuddy/billing/internal/app/service/eventlog"
	quota "github.com/bossbuddy/billing/internal/app/service/quota"
	subscription "github.com/bossbuddy/billing/internal/app/service/subscription"
	usage "github.com/bossbuddy/billing/internal/app/service/usage"
	webhooksvc "github.com/bossbuddy/billing/internal/app/service/webhook"
	models "github.com/bossbuddy/billing/internal/models"
	"github.com/bossbuddy/billing/pkg/config"
	"github.com/bossbuddy/billing/pkg/tool"
	types "github.com/bossbuddy/billing/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type passVerifier struct{}

func (passVerifier) VerifySignature(http.Header, []byte) error { return nil }

type failVerifier struct{}

func (failVerifier) VerifySignature(http.Header, []byte) error {
	return webhooksvc.ErrBadSignature
}

type testStack struct {
	cfg    *config.Config
	db     *gorm.DB
	events *eventlog.Service
	sub    *subscription.Service
	usage  *usage.Service
	quota  *quota.Service
	hooks  *webhooksvc.Service
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Subscription{}, &models.SubscriptionLog{},
		&models.WebhookEvent{}, &models.UsageLog{},
	))

	cfg := &config.Config{
		PlanItems: []*types.PlanItem{
			{ID: "pro-monthly", Plan: types.PlanPro, ProviderID: types.PaymentProviderPayPal, ProviderPlanID: "P-PRO", BillingCycleDays: 30},
		},
		Quota:      config.QuotaConfig{FreeDailyLimit: 3},
		UpgradeURL: "/pricing",
	}

	log := zap.NewNop().Sugar()
	subSvc := subscription.NewService(cfg, db, log)
	usageSvc := usage.New(db, log)
	quotaSvc := quota.NewService(cfg, log, subSvc, usageSvc)
	events := eventlog.New(db, log)
	hooks := webhooksvc.NewService(cfg, log, events, subSvc)
	hooks.RegisterVerifier(types.PaymentProviderPayPal, passVerifier{})
	hooks.RegisterVerifier(types.PaymentProviderPaddle, passVerifier{})

	return &testStack{cfg: cfg, db: db, events: events, sub: subSvc, usage: usageSvc, quota: quotaSvc, hooks: hooks}
}

// seedUser inserts a user row directly; plan expiry nil means free.
func (st *testStack) seedUser(t *testing.T, plan types.Plan, expiresAt *time.Time) *models.User {
	t.Helper()
	u := &models.User{
		ID:    tool.GenerateUUIDV7(),
		Email: tool.GenerateUUIDV7() + "@example.com",
		Plan:  plan,
		PlanExpiresAt: expiresAt,
	}
	require.NoError(t, st.db.Create(u).Error)
	return u
}

func performJSON(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func timePtr(v time.Time) *time.Time { return &v }
