package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"momentum/internal/types"
)

// stripeAPIBase is the default Stripe API base URL. Overridable in tests via
// StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string // Override for testing; defaults to stripeAPIBase
	Logger        *slog.Logger
}

// StripeClient fetches subscription state from the Stripe REST API through
// BaseClient, so Stripe calls share the platform's resilience behavior and
// tests can point it at an httptest server.
type StripeClient struct {
	base          *BaseClient
	secretKey     string
	webhookSecret string
	baseURL       string
	logger        *slog.Logger
}

// NewStripeClient creates a new StripeClient with the standard retry policy.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Momentum/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:          base,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		logger:        logger,
	}
}

// GetSubscriptionSnapshot fetches the customer's current subscription and
// maps it to the billing snapshot stored on the user record. Returns
// (nil, nil) when the customer has no subscription at all.
func (s *StripeClient) GetSubscriptionSnapshot(ctx context.Context, stripeCustomerID string) (*types.BillingSnapshot, error) {
	params := url.Values{}
	params.Set("customer", stripeCustomerID)
	// Stripe lists newest first, and a customer can carry leftovers such as
	// an incomplete checkout attempt ahead of their live subscription. Fetch
	// a page and pick the one that governs access.
	params.Set("limit", subscriptionPageSize)
	// Canceled subscriptions still matter: a cancellation inside the paid
	// period keeps access until the period ends.
	params.Set("status", "all")

	resp, err := s.doGet(ctx, "/v1/subscriptions", params)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("fetching subscriptions for customer %s", stripeCustomerID),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetSubscriptionSnapshot")
	}

	var listResp stripeSubscriptionList
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscriptions response",
			err,
		)
	}

	if len(listResp.Data) == 0 {
		return nil, nil
	}

	sub := pickSubscription(listResp.Data)
	return &types.BillingSnapshot{
		Status:           mapSubscriptionStatus(sub.Status),
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		StripeCustomerID: stripeCustomerID,
	}, nil
}

// ValidateWebhookPayload verifies a Stripe webhook signature and parses the
// event. The webhook path is the primary billing-state feed; the sync job is
// the backstop for events this validation rejects or the app never receives.
func (s *StripeClient) ValidateWebhookPayload(payload []byte, sigHeader string) (*stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeAuthSecretInvalid,
			"invalid Stripe webhook signature",
			err,
		)
	}
	return &event, nil
}

func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	return s.base.Do(req)
}

// handleErrorResponse maps a non-2xx Stripe response to an AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, action string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	s.logger.Error("stripe rejected request",
		"action", action,
		"status", resp.StatusCode,
		"body", string(snippet),
	)
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: stripe returned %d", action, resp.StatusCode),
		nil,
	)
}

// subscriptionPageSize bounds the subscription list fetch. A customer with
// more live entries than this has a billing problem we cannot resolve here.
const subscriptionPageSize = "10"

// pickSubscription selects the subscription that determines the customer's
// access: an active or trialing one wins, then a canceled or past_due one
// whose remaining paid period may still grant access, and only then the
// newest entry of whatever is left.
func pickSubscription(subs []stripeSubscription) stripeSubscription {
	for _, sub := range subs {
		if sub.Status == "active" || sub.Status == "trialing" {
			return sub
		}
	}
	for _, sub := range subs {
		if sub.Status == "canceled" || sub.Status == "past_due" {
			return sub
		}
	}
	return subs[0]
}

type stripeSubscription struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

type stripeSubscriptionList struct {
	Data    []stripeSubscription `json:"data"`
	HasMore bool                 `json:"has_more"`
}

// mapSubscriptionStatus converts a Stripe subscription status string to the
// snapshot enum. Statuses without access implications collapse to none.
func mapSubscriptionStatus(status string) types.BillingStatus {
	switch status {
	case "active":
		return types.BillingActive
	case "trialing":
		return types.BillingTrialing
	case "canceled":
		return types.BillingCanceled
	case "past_due":
		return types.BillingPastDue
	default:
		return types.BillingNone
	}
}
