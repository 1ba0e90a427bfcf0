package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"momentum/internal/types"
)

// chatAPIBase is the default chat provider API base URL. Overridable in tests
// via ChatClientConfig.BaseURL.
const chatAPIBase = "https://chat.momentumapp.io"

// botUserID is the fixed identity reminders are sent as. EnsureBotUser
// upserts it so a fresh chat workspace works without manual setup.
const botUserID = "momentum-bot"

// ChatClientConfig holds the configuration for creating a ChatClient.
type ChatClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to chatAPIBase
	Logger  *slog.Logger
}

// ChatClient implements the chat-provider surface used by the reminder
// processor by making direct HTTP calls through BaseClient, so every request
// gets the shared circuit breaker, retries, and error mapping.
type ChatClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewChatClient creates a new ChatClient with the standard retry policy.
func NewChatClient(httpClient *http.Client, cfg ChatClientConfig) *ChatClient {
	base := NewBaseClient(
		httpClient,
		"chat",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Momentum/1.0",
	)
	return NewChatClientWithBase(base, cfg)
}

// NewChatClientWithBase creates a ChatClient with a pre-configured
// BaseClient. Useful for tests that want to control retry behavior.
func NewChatClientWithBase(base *BaseClient, cfg ChatClientConfig) *ChatClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = chatAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// EnsureBotUser upserts the reminder bot identity and returns its user ID.
// The upsert endpoint is idempotent, so calling it on every batch run is
// safe.
func (c *ChatClient) EnsureBotUser(ctx context.Context) (string, error) {
	payload := map[string]any{
		"id":   botUserID,
		"name": "Momentum",
		"role": "bot",
	}

	resp, err := c.post(ctx, "/v1/users/upsert", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", c.apiError(resp, "upserting bot user")
	}
	return botUserID, nil
}

// AddChannelMember adds a user to a channel. A 409 from the provider means
// the user is already a member, which is success for our purposes.
func (c *ChatClient) AddChannelMember(ctx context.Context, channelID, userID string) error {
	payload := map[string]any{
		"user_id": userID,
	}

	resp, err := c.post(ctx, fmt.Sprintf("/v1/channels/%s/members", channelID), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode >= 400 {
		return c.apiError(resp, fmt.Sprintf("adding member to channel %s", channelID))
	}
	return nil
}

// SendMessage posts a message to a channel as the bot user.
func (c *ChatClient) SendMessage(ctx context.Context, channelID, text string) error {
	payload := map[string]any{
		"user_id": botUserID,
		"text":    text,
	}

	resp, err := c.post(ctx, fmt.Sprintf("/v1/channels/%s/messages", channelID), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.apiError(resp, fmt.Sprintf("sending message to channel %s", channelID))
	}
	return nil
}

func (c *ChatClient) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal chat payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create chat request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.base.Do(req)
}

// apiError maps a non-retryable provider response to an AppError. The body
// is read best-effort for the log line only; provider error formats are not
// part of our contract.
func (c *ChatClient) apiError(resp *http.Response, action string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	c.logger.Error("chat provider rejected request",
		"action", action,
		"status", resp.StatusCode,
		"body", string(snippet),
	)
	return types.NewAppError(
		types.ErrCodeUpstreamChat,
		fmt.Sprintf("%s: chat provider returned %d", action, resp.StatusCode),
		nil,
	)
}
