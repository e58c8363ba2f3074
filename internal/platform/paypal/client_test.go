package paypal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bossbuddy/billing/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(apiURL string) *Client {
	cfg := &config.Config{}
	cfg.PayPal = config.PayPalConfig{
		APIURL:        apiURL,
		ClientID:      "client",
		ClientSecret:  "secret",
		WebhookID:     "WH-ID",
		WebhookSecret: "webhook-secret",
	}
	return NewClient(cfg, zap.NewNop().Sugar())
}

func sign(t *testing.T, secret, webhookID, transmissionID, transmissionTime string, body []byte) string {
	t.Helper()
	message := fmt.Sprintf("%s|%s|%s|%d", transmissionID, transmissionTime, webhookID, crc32.ChecksumIEEE(body))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	c := testClient("")
	body := []byte(`{"id":"WH-1"}`)

	headers := http.Header{}
	headers.Set(HeaderTransmissionID, "t-1")
	headers.Set(HeaderTransmissionTime, "2024-01-01T00:00:00Z")
	headers.Set(HeaderTransmissionSig, sign(t, "webhook-secret", "WH-ID", "t-1", "2024-01-01T00:00:00Z", body))

	assert.NoError(t, c.VerifySignature(headers, body))

	// Tampered body invalidates the CRC in the signed message.
	assert.ErrorIs(t, c.VerifySignature(headers, []byte(`{"id":"WH-2"}`)), ErrInvalidSignature)

	headers.Set(HeaderTransmissionSig, "bogus")
	assert.ErrorIs(t, c.VerifySignature(headers, body), ErrInvalidSignature)

	assert.ErrorIs(t, c.VerifySignature(http.Header{}, body), ErrInvalidSignature)
}

func TestCancelSubscription(t *testing.T) {
	var gotPath, gotAuth string
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	require.NoError(t, c.CancelSubscription(context.Background(), "I-123"))
	assert.Equal(t, "/v1/billing/subscriptions/I-123/cancel", gotPath)
	assert.NotEmpty(t, gotAuth)

	// Already-terminal agreements cancel cleanly.
	status = http.StatusUnprocessableEntity
	assert.NoError(t, c.CancelSubscription(context.Background(), "I-123"))

	status = http.StatusInternalServerError
	assert.Error(t, c.CancelSubscription(context.Background(), "I-123"))
}
