package pushover

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voxflow/internal/domain"
)

const DefaultBaseURL = "https://api.pushover.net/1"

type Client struct {
	token      string
	userKey    string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(token, userKey string, logger *slog.Logger) *Client {
	return NewClientWithURL(token, userKey, DefaultBaseURL, logger)
}

func NewClientWithURL(token, userKey, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		token:      token,
		userKey:    userKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (c *Client) Notify(ctx context.Context, message string) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("message", message)
	data.Set("title", "VoxFlow")

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/messages.json",
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover error: %s", resp.Status)
	}

	return nil
}

// Emit pushes error events in the background; other events are ignored.
func (c *Client) Emit(ev domain.Event) {
	if ev.Kind != domain.EventError || ev.Text == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.Notify(ctx, ev.Text); err != nil {
			c.logger.Warn("pushover notification failed", "request_id", ev.RequestID, "error", err)
		}
	}()
}
