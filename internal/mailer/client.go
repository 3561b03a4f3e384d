package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/benchwire/hotlist/internal/config"
)

// Client talks to the mail gateway API
type Client struct {
	baseURL    string
	apiKey     string
	from       string
	fromName   string
	httpClient *http.Client
}

// NewClient creates a new mail gateway client
func NewClient(cfg *config.MailerConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		from:     cfg.FromEmail,
		fromName: cfg.FromName,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Send posts the email to the gateway. The caller sets the timeout
// through ctx; the gateway deduplicates on the idempotency key.
func (c *Client) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	if req.From == "" {
		req.From = c.from
	}
	if req.FromName == "" {
		req.FromName = c.fromName
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/send", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return nil, fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("gateway error: %s", errResp.Error)
	}

	result := &SendResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}
