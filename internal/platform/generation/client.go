package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bossbuddy/billing/pkg/config"
	types "github.com/bossbuddy/billing/pkg/types"

	"go.uber.org/zap"
)

// ErrUpstream marks transient failures of the completion backend; callers
// map it to a 503 without charging the user's quota.
var ErrUpstream = errors.New("generation backend unavailable")

type Client struct {
	cfg  *config.GenerationConfig
	http *http.Client
	log  *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	timeout := 30 * time.Second
	if cfg.Generation.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
	}
	return &Client{
		cfg:  &cfg.Generation,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Rewrite sends the message through the chat completion endpoint with the
// tone's system prompt and returns the rewritten text.
func (c *Client) Rewrite(ctx context.Context, message string, tone types.Tone) (string, error) {
	prompt := promptFor(tone)
	system := prompt.system
	if prompt.style != "" {
		system = fmt.Sprintf("%s Style: %s", prompt.system, prompt.style)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: message},
		},
		Temperature: prompt.temperature,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warnw("completion request rejected", "status", resp.StatusCode, "body", string(raw))
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrUpstream, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUpstream, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrUpstream)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
