package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds all domain-specific metrics for the application
type Registry struct {
	meter metric.Meter

	// Provisioning metrics
	SearchDuration         metric.Float64Histogram
	PurchaseSuccessCounter metric.Int64Counter
	PurchaseFailureCounter metric.Int64Counter
	PurchaseConflictCount  metric.Int64Counter

	// Webhook metrics
	WebhookReceivedCounter  metric.Int64Counter
	WebhookRejectedCounter  metric.Int64Counter
	WebhookDuplicateCounter metric.Int64Counter
	WebhookApplyDuration    metric.Float64Histogram

	// Compliance metrics
	GroupCreatedCounter  metric.Int64Counter
	GroupApprovedCounter metric.Int64Counter
	FieldRejectedCounter metric.Int64Counter
}

// NewRegistry creates a new metrics registry with all domain metrics
func NewRegistry(meterName string) (*Registry, error) {
	meter := otel.Meter(meterName)
	r := &Registry{meter: meter}

	if err := r.initProvisioningMetrics(); err != nil {
		return nil, err
	}
	if err := r.initWebhookMetrics(); err != nil {
		return nil, err
	}
	if err := r.initComplianceMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) initProvisioningMetrics() error {
	var err error

	r.SearchDuration, err = r.meter.Float64Histogram(
		"npb.provisioning.search_duration",
		metric.WithDescription("Carrier number search duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return err
	}

	r.PurchaseSuccessCounter, err = r.meter.Int64Counter(
		"npb.provisioning.purchase_success_total",
		metric.WithDescription("Total number of successfully placed number orders"),
	)
	if err != nil {
		return err
	}

	r.PurchaseFailureCounter, err = r.meter.Int64Counter(
		"npb.provisioning.purchase_failure_total",
		metric.WithDescription("Total number of failed purchase attempts"),
	)
	if err != nil {
		return err
	}

	r.PurchaseConflictCount, err = r.meter.Int64Counter(
		"npb.provisioning.purchase_conflict_total",
		metric.WithDescription("Purchase attempts rejected by the one-live-number guard"),
	)
	return err
}

func (r *Registry) initWebhookMetrics() error {
	var err error

	r.WebhookReceivedCounter, err = r.meter.Int64Counter(
		"npb.webhook.received_total",
		metric.WithDescription("Total webhook deliveries received"),
	)
	if err != nil {
		return err
	}

	r.WebhookRejectedCounter, err = r.meter.Int64Counter(
		"npb.webhook.rejected_total",
		metric.WithDescription("Webhook deliveries rejected by signature or timestamp verification"),
	)
	if err != nil {
		return err
	}

	r.WebhookDuplicateCounter, err = r.meter.Int64Counter(
		"npb.webhook.duplicate_total",
		metric.WithDescription("Webhook deliveries skipped as exact replays"),
	)
	if err != nil {
		return err
	}

	r.WebhookApplyDuration, err = r.meter.Float64Histogram(
		"npb.webhook.apply_duration",
		metric.WithDescription("Time spent applying a webhook event to local state in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500),
	)
	return err
}

func (r *Registry) initComplianceMetrics() error {
	var err error

	r.GroupCreatedCounter, err = r.meter.Int64Counter(
		"npb.compliance.group_created_total",
		metric.WithDescription("Requirement groups created at carriers"),
	)
	if err != nil {
		return err
	}

	r.GroupApprovedCounter, err = r.meter.Int64Counter(
		"npb.compliance.group_approved_total",
		metric.WithDescription("Requirement groups reaching fully approved state"),
	)
	if err != nil {
		return err
	}

	r.FieldRejectedCounter, err = r.meter.Int64Counter(
		"npb.compliance.field_rejected_total",
		metric.WithDescription("Requirement fields rejected by carrier review"),
	)
	return err
}

// RecordPurchase increments the outcome counter for a purchase attempt
func (r *Registry) RecordPurchase(ctx context.Context, provider string, err error) {
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	if err != nil {
		r.PurchaseFailureCounter.Add(ctx, 1, attrs)
		return
	}
	r.PurchaseSuccessCounter.Add(ctx, 1, attrs)
}

// RecordSearch records the duration of a carrier search
func (r *Registry) RecordSearch(ctx context.Context, provider string, millis float64) {
	r.SearchDuration.Record(ctx, millis, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordPurchaseConflict counts a purchase refused by the live-number guard
func (r *Registry) RecordPurchaseConflict(ctx context.Context) {
	r.PurchaseConflictCount.Add(ctx, 1)
}

// RecordWebhook increments the received counter for an event type
func (r *Registry) RecordWebhook(ctx context.Context, eventType string) {
	r.WebhookReceivedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

// RecordWebhookRejected counts a delivery that failed verification or parsing
func (r *Registry) RecordWebhookRejected(ctx context.Context, reason string) {
	r.WebhookRejectedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordWebhookDuplicate counts a redelivery suppressed by the dedup cache
func (r *Registry) RecordWebhookDuplicate(ctx context.Context) {
	r.WebhookDuplicateCounter.Add(ctx, 1)
}

// RecordWebhookApply records how long applying an event took
func (r *Registry) RecordWebhookApply(ctx context.Context, eventType string, millis float64) {
	r.WebhookApplyDuration.Record(ctx, millis, metric.WithAttributes(attribute.String("event_type", eventType)))
}

// RecordGroupCreated counts requirement groups created at a carrier
func (r *Registry) RecordGroupCreated(ctx context.Context, provider string) {
	r.GroupCreatedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordGroupApproved counts groups reaching the fully approved state
func (r *Registry) RecordGroupApproved(ctx context.Context) {
	r.GroupApprovedCounter.Add(ctx, 1)
}

// RecordFieldRejected counts field-level rejections from carrier review
func (r *Registry) RecordFieldRejected(ctx context.Context) {
	r.FieldRejectedCounter.Add(ctx, 1)
}
