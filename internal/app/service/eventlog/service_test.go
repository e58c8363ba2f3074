package eventlog

import (
	"context"
	"errors"
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
	require.NoError(t, db.AutoMigrate(&models.WebhookEvent{}))
	return New(db, zap.NewNop().Sugar())
}

func TestInsert_FirstDeliveryAndReplay(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	body := []byte(`{"id":"WH-1","event_type":"BILLING.SUBSCRIPTION.ACTIVATED"}`)

	ev, created, err := s.Insert(ctx, types.PaymentProviderPayPal, "WH-1", "BILLING.SUBSCRIPTION.ACTIVATED", body, "trace-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, ev.Processed)

	// Same delivery again: same stored row comes back, with its original
	// processed flag.
	require.NoError(t, s.MarkProcessed(ctx, ev.ID, map[string]string{"status": "ok"}))
	dup, created, err := s.Insert(ctx, types.PaymentProviderPayPal, "WH-1", "BILLING.SUBSCRIPTION.ACTIVATED", body, "trace-2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ev.ID, dup.ID)
	assert.True(t, dup.Processed)
}

func TestInsert_SameEventIDDifferentProvider(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, created, err := s.Insert(ctx, types.PaymentProviderPayPal, "EV-1", "x", nil, "")
	require.NoError(t, err)
	assert.True(t, created)

	// Event ids are only unique per provider.
	_, created, err = s.Insert(ctx, types.PaymentProviderPaddle, "EV-1", "x", nil, "")
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMarkFailedKeepsEventUnprocessed(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	ev, _, err := s.Insert(ctx, types.PaymentProviderPayPal, "WH-2", "PAYMENT.SALE.COMPLETED", nil, "")
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, ev.ID, errors.New("db unavailable")))

	stored, err := s.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, stored.Processed)
	require.NotNil(t, stored.Result)
	assert.Contains(t, string(*stored.Result), "db unavailable")
}

func TestUnprocessedBefore(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	old, _, err := s.Insert(ctx, types.PaymentProviderPayPal, "WH-old", "x", nil, "")
	require.NoError(t, err)
	done, _, err := s.Insert(ctx, types.PaymentProviderPayPal, "WH-done", "x", nil, "")
	require.NoError(t, err)
	require.NoError(t, s.MarkProcessed(ctx, done.ID, nil))

	rows, err := s.UnprocessedBefore(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, old.ID, rows[0].ID)

	// A cutoff in the past excludes fresh events.
	rows, err = s.UnprocessedBefore(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestScanEvents(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		_, _, err := s.Insert(ctx, types.PaymentProviderPayPal, id, "BILLING.SUBSCRIPTION.CREATED", nil, "")
		require.NoError(t, err)
	}
	_, _, err := s.Insert(ctx, types.PaymentProviderPaddle, "D", "subscription.canceled", nil, "")
	require.NoError(t, err)

	resp, err := s.ScanEvents(ctx, &ScanEventsRequest{
		Filters: []*types.CommonFilter{{Field: "provider", Operator: types.CommonFilterOperatorEq, Values: []any{"paypal"}}},
		Size:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)
	assert.Len(t, resp.Items, 2)

	_, err = s.ScanEvents(ctx, nil)
	assert.Error(t, err)
}
