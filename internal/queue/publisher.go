// Package queue provides the SQS-based producer that hands created
// notifications to the delivery workers (push, email).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"momentum/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DeliveryPublisher serializes DeliveryMessages and sends them to the
// notification delivery queue. Delivery is at-least-once; consumers must
// tolerate duplicates.
type DeliveryPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewDeliveryPublisher creates a publisher for the given delivery queue.
func NewDeliveryPublisher(client SQSSender, queueURL string, logger *slog.Logger) *DeliveryPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// PublishNotification enqueues one delivery message. The notification type
// rides along as a message attribute so consumers can filter without
// deserializing the body.
func (p *DeliveryPublisher) PublishNotification(ctx context.Context, msg types.DeliveryMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal delivery message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Type)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to enqueue delivery for notification %s", msg.NotificationID),
			err,
		)
	}

	p.logger.DebugContext(ctx, "delivery message enqueued",
		"notification_id", msg.NotificationID,
		"user_id", msg.UserID,
		"type", string(msg.Type),
	)
	return nil
}
