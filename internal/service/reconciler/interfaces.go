package reconciler

import (
	"context"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/davidleathers/number-provisioning-backend/internal/service/compliance"
	"github.com/google/uuid"
)

// Outcome classifies what a delivery did once verified.
type Outcome string

const (
	// OutcomeApplied means the event changed local state.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the event was understood but changed nothing:
	// a stale update, an unknown event type, or a record this service
	// does not track. Ignored deliveries are still acknowledged so the
	// carrier stops retrying them.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDuplicate means the dedup cache had already seen this body.
	OutcomeDuplicate Outcome = "duplicate"
)

// Result summarizes a handled delivery for the transport layer.
type Result struct {
	EventType string  `json:"event_type"`
	Outcome   Outcome `json:"outcome"`
	Detail    string  `json:"detail,omitempty"`
}

// Service reconciles asynchronous carrier events into local state.
// Deliveries may arrive out of order, duplicated, or for records that
// do not exist yet; Handle absorbs all three.
type Service interface {
	// Handle verifies, dedups, parses and applies one raw delivery.
	// An error return means the delivery must NOT be acknowledged.
	Handle(ctx context.Context, rawBody []byte, signatureHeader, timestampHeader string) (*Result, error)
}

// ComplianceApplier is the slice of the compliance service the
// reconciler drives.
type ComplianceApplier interface {
	ApplyRemoteStatus(ctx context.Context, externalGroupID string, fields []carrier.FieldEvent) (*compliance.RemoteStatusResult, error)
}

// NumberRepository defines the persistence surface this service needs
type NumberRepository interface {
	Create(ctx context.Context, n *number.Number) error
	Update(ctx context.Context, n *number.Number) error
	GetByExternalOrderID(ctx context.Context, orderID string) (*number.Number, error)
	UpdateRequirementStatusByGroup(ctx context.Context, groupID uuid.UUID, status number.RequirementStatus) (int64, error)
}

// Verifier authenticates a raw delivery before anything else touches it.
type Verifier interface {
	Verify(rawBody []byte, signatureHeader, timestampHeader string) error
}

// EventCache suppresses redeliveries. Seen is best effort: a cache
// outage must degrade to processing the event, never to dropping it.
type EventCache interface {
	Seen(ctx context.Context, rawBody []byte) bool
	Forget(ctx context.Context, rawBody []byte)
}

// MetricsCollector records webhook outcomes
type MetricsCollector interface {
	RecordWebhook(ctx context.Context, eventType string)
	RecordWebhookRejected(ctx context.Context, reason string)
	RecordWebhookDuplicate(ctx context.Context)
	RecordWebhookApply(ctx context.Context, eventType string, millis float64)
	RecordGroupApproved(ctx context.Context)
	RecordFieldRejected(ctx context.Context)
}
