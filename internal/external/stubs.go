package external

import (
	"context"
	"log/slog"

	"momentum/internal/types"
)

// Stub implementations let the engine boot in local/test mode without real
// provider credentials. They log each call and return safe defaults.

// StubChatProvider logs chat calls and always succeeds.
type StubChatProvider struct {
	logger *slog.Logger
}

// NewStubChatProvider creates a StubChatProvider.
func NewStubChatProvider(logger *slog.Logger) *StubChatProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubChatProvider{logger: logger}
}

func (s *StubChatProvider) EnsureBotUser(ctx context.Context) (string, error) {
	s.logger.InfoContext(ctx, "stub: EnsureBotUser called")
	return "bot_stub", nil
}

func (s *StubChatProvider) AddChannelMember(ctx context.Context, channelID, userID string) error {
	s.logger.InfoContext(ctx, "stub: AddChannelMember called",
		"channel_id", channelID,
		"user_id", userID,
	)
	return nil
}

func (s *StubChatProvider) SendMessage(ctx context.Context, channelID, text string) error {
	s.logger.InfoContext(ctx, "stub: SendMessage called",
		"channel_id", channelID,
		"text", text,
	)
	return nil
}

// StubBillingProvider reports every customer as actively subscribed, so
// local runs never trip the subscription gate.
type StubBillingProvider struct {
	logger *slog.Logger
}

// NewStubBillingProvider creates a StubBillingProvider.
func NewStubBillingProvider(logger *slog.Logger) *StubBillingProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubBillingProvider{logger: logger}
}

func (s *StubBillingProvider) GetSubscriptionSnapshot(ctx context.Context, stripeCustomerID string) (*types.BillingSnapshot, error) {
	s.logger.InfoContext(ctx, "stub: GetSubscriptionSnapshot called",
		"customer_id", stripeCustomerID,
	)
	return &types.BillingSnapshot{
		Status:           types.BillingActive,
		StripeCustomerID: stripeCustomerID,
	}, nil
}

// StubDeliveryPublisher logs delivery messages instead of enqueueing them.
type StubDeliveryPublisher struct {
	logger *slog.Logger
}

// NewStubDeliveryPublisher creates a StubDeliveryPublisher.
func NewStubDeliveryPublisher(logger *slog.Logger) *StubDeliveryPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubDeliveryPublisher{logger: logger}
}

func (s *StubDeliveryPublisher) PublishNotification(ctx context.Context, msg types.DeliveryMessage) error {
	s.logger.InfoContext(ctx, "stub: PublishNotification called",
		"notification_id", msg.NotificationID,
		"user_id", msg.UserID,
		"type", string(msg.Type),
	)
	return nil
}
