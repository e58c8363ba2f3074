package paddle

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bossbuddy/billing/pkg/config"

	"go.uber.org/zap"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// HeaderSignature carries "ts=<unix>;h1=<hex hmac>".
const HeaderSignature = "Paddle-Signature"

// maxTimestampSkew bounds how stale a signed delivery may be.
const maxTimestampSkew = 5 * time.Minute

type Client struct {
	cfg  *config.PaddleConfig
	http *http.Client
	log  *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	return &Client{
		cfg:  &cfg.Paddle,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log,
	}
}

// VerifySignature checks the Paddle-Signature header: an HMAC-SHA256 of
// "<ts>:<raw body>" under the webhook secret, hex encoded. The timestamp is
// bounded to keep captured deliveries from being replayed much later.
func (c *Client) VerifySignature(headers http.Header, body []byte) error {
	header := headers.Get(HeaderSignature)
	if header == "" {
		return ErrInvalidSignature
	}

	var ts, h1 string
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "h1":
			h1 = v
		}
	}
	if ts == "" || h1 == "" {
		return ErrInvalidSignature
	}

	var unix int64
	if _, err := fmt.Sscanf(ts, "%d", &unix); err != nil {
		return ErrInvalidSignature
	}
	age := time.Since(time.Unix(unix, 0))
	if age > maxTimestampSkew || age < -maxTimestampSkew {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	fmt.Fprintf(mac, "%s:", ts)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(h1)) {
		return ErrInvalidSignature
	}
	return nil
}

// CancelSubscription stops a Paddle subscription through the classic vendor
// API. Paddle acknowledges with {"success":true}; anything else is an error.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/api/2.0/subscription/users_cancel"
	form := url.Values{
		"vendor_id":        {c.cfg.VendorID},
		"vendor_auth_code": {c.cfg.AuthCode},
		"subscription_id":  {subscriptionID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build cancel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), `"success":true`) {
		c.log.Warnw("paddle cancel rejected", "status", resp.StatusCode, "body", string(raw))
		return fmt.Errorf("paddle cancel returned status %d", resp.StatusCode)
	}
	return nil
}
