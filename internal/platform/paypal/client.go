package paypal

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bossbuddy/billing/pkg/config"

	"go.uber.org/zap"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Headers carried on every PayPal webhook delivery.
const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
)

type Client struct {
	cfg  *config.PayPalConfig
	http *http.Client
	log  *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	return &Client{
		cfg:  &cfg.PayPal,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log,
	}
}

// VerifySignature checks a webhook delivery against the shared webhook
// secret. The signed message chains the transmission id, the transmission
// timestamp, the webhook id and a CRC32 of the raw body, so a valid
// signature also binds the headers to this exact payload.
func (c *Client) VerifySignature(headers http.Header, body []byte) error {
	transmissionID := headers.Get(HeaderTransmissionID)
	transmissionTime := headers.Get(HeaderTransmissionTime)
	signature := headers.Get(HeaderTransmissionSig)
	if transmissionID == "" || transmissionTime == "" || signature == "" {
		return ErrInvalidSignature
	}

	crc := crc32.ChecksumIEEE(body)
	message := fmt.Sprintf("%s|%s|%s|%d", transmissionID, transmissionTime, c.cfg.WebhookID, crc)

	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write([]byte(message))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// CancelSubscription ends a billing agreement on PayPal's side. PayPal
// returns 204 on success and 422 when the subscription is already in a
// terminal state; the latter is treated as success so user-initiated
// cancels stay idempotent.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	url := fmt.Sprintf("%s/v1/billing/subscriptions/%s/cancel",
		strings.TrimRight(c.cfg.APIURL, "/"), subscriptionID)
	payload := []byte(`{"reason":"Customer requested cancellation"}`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build cancel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusUnprocessableEntity {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	c.log.Warnw("paypal cancel rejected", "status", resp.StatusCode, "body", string(raw))
	return fmt.Errorf("paypal cancel returned status %d", resp.StatusCode)
}
