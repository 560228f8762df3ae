package carrier

import (
	"encoding/json"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
)

// Event types delivered by the carriers' webhook streams.
const (
	EventRequirementGroupUpdated  = "requirement_group.updated"
	EventRequirementDocumentEvent = "requirement_group.document.updated"
	EventNumberOrderComplete      = "number_order.complete"
)

// Event is the normalized envelope for an inbound carrier event. Exactly
// one of the payload pointers is set for the types this service knows;
// unknown types keep only Type and Raw so they can be logged and acked.
type Event struct {
	Type       string
	OccurredAt time.Time
	Group      *GroupEvent
	Order      *OrderEvent
	Raw        json.RawMessage
}

// GroupEvent reports review progress on a requirement group.
type GroupEvent struct {
	ExternalGroupID string       `json:"id"`
	Status          string       `json:"status,omitempty"`
	Fields          []FieldEvent `json:"regulatory_requirements,omitempty"`
}

// FieldEvent is one field-level review outcome.
type FieldEvent struct {
	FieldName       string `json:"field_name"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// OrderEvent reports progress on a number order.
type OrderEvent struct {
	ExternalOrderID  string     `json:"id"`
	Status           string     `json:"status"`
	PhoneNumber      string     `json:"phone_number,omitempty"`
	ExternalNumberID string     `json:"number_id,omitempty"`
	RequiredFields   []string   `json:"required_fields,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	OrganizationID   string     `json:"organization_id,omitempty"`
	SubscriptionUnit string     `json:"subscription_unit_id,omitempty"`
	Provider         string     `json:"provider,omitempty"`
}

type eventEnvelope struct {
	Type       string          `json:"type"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ParseEvent decodes a verified webhook body into the normalized event
// model. Unknown event types parse successfully so the reconciler can
// acknowledge them; a malformed envelope is a validation error.
func ParseEvent(rawBody []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, errors.NewValidationError("MALFORMED_EVENT", "event body is not a valid envelope").WithCause(err)
	}
	if env.Type == "" {
		return nil, errors.NewValidationError("MALFORMED_EVENT", "event type is missing")
	}

	ev := &Event{Type: env.Type, Raw: env.Data}
	if env.OccurredAt != nil {
		ev.OccurredAt = *env.OccurredAt
	}

	switch env.Type {
	case EventRequirementGroupUpdated, EventRequirementDocumentEvent:
		var g GroupEvent
		if err := json.Unmarshal(env.Data, &g); err != nil {
			return nil, errors.NewValidationError("MALFORMED_EVENT", "requirement group payload is invalid").WithCause(err)
		}
		if g.ExternalGroupID == "" {
			return nil, errors.NewValidationError("MALFORMED_EVENT", "requirement group event is missing its group id")
		}
		ev.Group = &g
	case EventNumberOrderComplete:
		var o OrderEvent
		if err := json.Unmarshal(env.Data, &o); err != nil {
			return nil, errors.NewValidationError("MALFORMED_EVENT", "number order payload is invalid").WithCause(err)
		}
		if o.ExternalOrderID == "" {
			return nil, errors.NewValidationError("MALFORMED_EVENT", "number order event is missing its order id")
		}
		ev.Order = &o
	}

	return ev, nil
}
