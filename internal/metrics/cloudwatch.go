// Package metrics emits engine run statistics to CloudWatch. Emission is
// best-effort; a metrics failure is logged and never surfaces to the caller.
package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"momentum/internal/reminders"
	"momentum/internal/scheduler"
)

// Namespace is the CloudWatch namespace for engine metrics.
const Namespace = "Momentum/Engine"

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchEmitter publishes run statistics to CloudWatch.
type CloudWatchEmitter struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchEmitter creates an emitter publishing to the engine namespace.
func NewCloudWatchEmitter(client CloudWatchClient, logger *slog.Logger) *CloudWatchEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchEmitter{
		client:    client,
		namespace: Namespace,
		logger:    logger,
	}
}

// RecordOrchestratorRun emits one datum per counter of an hourly sweep.
func (m *CloudWatchEmitter) RecordOrchestratorRun(ctx context.Context, stats scheduler.OrchestratorStats) {
	m.put(ctx, "NotificationSweep", map[string]int{
		"UsersProcessed":         stats.Processed,
		"NotificationsSent":      stats.Sent,
		"SkippedWrongTime":       stats.SkippedWrongTime,
		"SkippedWeekend":         stats.SkippedWeekend,
		"SkippedNoSubscription":  stats.SkippedNoSubscription,
		"SkippedAlreadyDone":     stats.SkippedAlreadyDone,
		"SkippedAlreadyNotified": stats.SkippedAlreadyNotified,
		"SweepErrors":            stats.Errors,
	})
}

// RecordReminderRun emits one datum per counter of a reminder batch.
func (m *CloudWatchEmitter) RecordReminderRun(ctx context.Context, stats reminders.Stats) {
	m.put(ctx, "ReminderBatch", map[string]int{
		"JobsProcessed":      stats.Processed,
		"RemindersSent":      stats.Sent,
		"JobsDiscardedStale": stats.DiscardedStale,
		"JobsNoChannel":      stats.NoChannel,
		"JobsFailed":         stats.Failed,
		"JobErrors":          stats.Errors,
	})
}

// RecordBillingDrift emits a datum when local billing state disagreed with
// the payment provider.
func (m *CloudWatchEmitter) RecordBillingDrift(ctx context.Context, userID string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("BillingStateDrift"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record billing drift metric",
			"user_id", userID,
			"error", err,
		)
	}
}

// put emits a batch of counters under one job dimension.
func (m *CloudWatchEmitter) put(ctx context.Context, job string, counters map[string]int) {
	data := make([]cwtypes.MetricDatum, 0, len(counters))
	for name, value := range counters {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(value)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{
					Name:  aws.String("Job"),
					Value: aws.String(job),
				},
			},
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record run metrics",
			"job", job,
			"error", err,
		)
	}
}
