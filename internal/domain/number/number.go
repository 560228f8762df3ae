package number

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/values"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Number is a leased telephone number and the record of its provisioning
// lifecycle. Rows are never deleted; a number that fails or is released
// keeps its history through status transitions.
type Number struct {
	ID             uuid.UUID          `json:"id"`
	Phone          values.PhoneNumber `json:"phone_number"`
	Provider       ProviderType       `json:"provider"`
	Status         Status             `json:"status"`
	Features       Features           `json:"features"`
	OrganizationID uuid.UUID          `json:"organization_id"`

	// SubscriptionUnitID is the unit this number is leased for. At most
	// one number per unit may be live (active, pending or provisioning).
	SubscriptionUnitID uuid.UUID `json:"subscription_unit_id"`

	// Carrier correlation ids. ExternalOrderID is set at purchase time
	// and is the reconciliation key for async order events;
	// ExternalNumberID arrives with order completion.
	ExternalOrderID  string `json:"external_order_id,omitempty"`
	ExternalNumberID string `json:"external_number_id,omitempty"`

	// RequirementGroupID links to the compliance bundle gating
	// activation, when the destination zone demands one.
	RequirementGroupID *uuid.UUID        `json:"requirement_group_id,omitempty"`
	RequirementStatus  RequirementStatus `json:"requirement_status"`

	// RequiredFields lists regulatory fields the carrier still wants,
	// with the carrier-set deadline for supplying them.
	RequiredFields []string   `json:"required_fields,omitempty"`
	OrderDeadline  *time.Time `json:"order_deadline,omitempty"`

	// MonthlyCost is the carrier's quoted price, stored verbatim.
	MonthlyCost decimal.NullDecimal `json:"monthly_cost,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Status int

const (
	StatusPending Status = iota
	StatusRequirementsPending
	StatusProvisioning
	StatusActive
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRequirementsPending:
		return "requirements_pending"
	case StatusProvisioning:
		return "provisioning"
	case StatusActive:
		return "active"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored status string back into a Status
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "requirements_pending":
		return StatusRequirementsPending, nil
	case "provisioning":
		return StatusProvisioning, nil
	case "active":
		return StatusActive, nil
	case "error":
		return StatusError, nil
	default:
		return StatusError, fmt.Errorf("unknown number status: %q", s)
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsLive reports whether the number counts against the one-per-unit
// invariant
func (s Status) IsLive() bool {
	switch s {
	case StatusActive, StatusPending, StatusProvisioning:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed
func (s Status) IsTerminal() bool {
	return s == StatusActive || s == StatusError
}

type ProviderType int

const (
	ProviderTwilio ProviderType = iota
	ProviderTelnyx
)

func (p ProviderType) String() string {
	switch p {
	case ProviderTwilio:
		return "twilio"
	case ProviderTelnyx:
		return "telnyx"
	default:
		return "unknown"
	}
}

// ParseProvider converts a provider name into a ProviderType
func ParseProvider(s string) (ProviderType, error) {
	switch s {
	case "twilio":
		return ProviderTwilio, nil
	case "telnyx":
		return ProviderTelnyx, nil
	default:
		return ProviderTwilio, fmt.Errorf("unknown provider: %q", s)
	}
}

func (p ProviderType) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *ProviderType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseProvider(str)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type RequirementStatus int

const (
	RequirementStatusNone RequirementStatus = iota
	RequirementStatusPending
	RequirementStatusApproved
	RequirementStatusRejected
)

func (r RequirementStatus) String() string {
	switch r {
	case RequirementStatusNone:
		return "none"
	case RequirementStatusPending:
		return "pending"
	case RequirementStatusApproved:
		return "approved"
	case RequirementStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ParseRequirementStatus converts a stored requirement status string
func ParseRequirementStatus(s string) (RequirementStatus, error) {
	switch s {
	case "none":
		return RequirementStatusNone, nil
	case "pending":
		return RequirementStatusPending, nil
	case "approved":
		return RequirementStatusApproved, nil
	case "rejected":
		return RequirementStatusRejected, nil
	default:
		return RequirementStatusNone, fmt.Errorf("unknown requirement status: %q", s)
	}
}

func (r RequirementStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RequirementStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseRequirementStatus(str)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Features are the capabilities of a number. Carriers may not report a
// capability at search time; persisted records default unknown flags to
// false for display purposes.
type Features struct {
	Voice bool `json:"voice"`
	SMS   bool `json:"sms"`
	MMS   bool `json:"mms"`
}

func NewNumber(phone values.PhoneNumber, provider ProviderType, orgID, unitID uuid.UUID) (*Number, error) {
	if phone.IsEmpty() {
		return nil, fmt.Errorf("phone number cannot be empty")
	}
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("organization ID cannot be nil")
	}
	if unitID == uuid.Nil {
		return nil, fmt.Errorf("subscription unit ID cannot be nil")
	}

	now := time.Now().UTC()
	return &Number{
		ID:                 uuid.New(),
		Phone:              phone,
		Provider:           provider,
		Status:             StatusPending,
		OrganizationID:     orgID,
		SubscriptionUnitID: unitID,
		RequirementStatus:  RequirementStatusNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// MarkRequirementsPending records that the carrier demands additional
// regulatory fields before the order can complete.
func (n *Number) MarkRequirementsPending(fields []string, deadline *time.Time) error {
	if n.Status.IsTerminal() {
		return fmt.Errorf("cannot transition %s number to requirements_pending", n.Status)
	}
	n.Status = StatusRequirementsPending
	n.RequiredFields = fields
	n.OrderDeadline = deadline
	if n.RequirementStatus == RequirementStatusNone {
		n.RequirementStatus = RequirementStatusPending
	}
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkProvisioning records that the carrier accepted the order and is
// working on it.
func (n *Number) MarkProvisioning() error {
	if n.Status.IsTerminal() {
		return fmt.Errorf("cannot transition %s number to provisioning", n.Status)
	}
	n.Status = StatusProvisioning
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// Activate completes the order. The carrier-assigned number id is
// captured for later management calls.
func (n *Number) Activate(externalNumberID string) error {
	if n.Status == StatusError {
		return fmt.Errorf("cannot activate a failed number")
	}
	n.Status = StatusActive
	n.ExternalNumberID = externalNumberID
	n.RequiredFields = nil
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves the number to the terminal error state.
func (n *Number) Fail() {
	n.Status = StatusError
	n.UpdatedAt = time.Now().UTC()
}
