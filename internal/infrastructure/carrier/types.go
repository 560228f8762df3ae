package carrier

import (
	"context"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/values"
	"github.com/shopspring/decimal"
)

// Client is the uniform surface over heterogeneous carrier APIs. Each
// implementation maps its provider's error vocabulary into the shared
// AppError taxonomy; none of them touch local persistence.
type Client interface {
	// SearchAvailable lists purchasable numbers for a country code.
	SearchAvailable(ctx context.Context, countryCode string, limit int) ([]CandidateNumber, error)
	// Purchase places an order for a specific number.
	Purchase(ctx context.Context, req PurchaseRequest) (*OrderResult, error)
	// CreateRequirementGroup creates a remote compliance bundle for a zone.
	CreateRequirementGroup(ctx context.Context, zone string) (*ExternalGroup, error)
	// UpdateRequirementGroup pushes field values into a remote group.
	UpdateRequirementGroup(ctx context.Context, groupID string, fields map[string]string) error
	// Provider names the carrier behind this client.
	Provider() string
}

// Capabilities reports what a number supports as known at search time.
// nil means the carrier did not populate the flag; callers deciding on
// fallback must treat nil as unknown, not false.
type Capabilities struct {
	Voice *bool `json:"voice,omitempty"`
	SMS   *bool `json:"sms,omitempty"`
	MMS   *bool `json:"mms,omitempty"`
}

// Known reports a capability flag with absence collapsed to false, the
// defaulting used when persisting a record for display.
func Known(b *bool) bool {
	return b != nil && *b
}

// CandidateNumber is a search hit normalized at the adapter boundary.
type CandidateNumber struct {
	Phone        values.PhoneNumber  `json:"phone_number"`
	CountryCode  string              `json:"country_code"`
	Region       string              `json:"region,omitempty"`
	Capabilities Capabilities        `json:"capabilities"`
	MonthlyCost  decimal.NullDecimal `json:"monthly_cost,omitempty"`
}

// PurchaseRequest asks a carrier to lease a specific number.
type PurchaseRequest struct {
	Phone values.PhoneNumber
	// RequirementGroupExternalID attaches an existing compliance bundle
	// for providers that demand regulatory approval in the target zone.
	RequirementGroupExternalID string
}

type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "pending"
	OrderStatusRequirements OrderStatus = "requirements"
	OrderStatusCompleted    OrderStatus = "completed"
	OrderStatusFailed       OrderStatus = "failed"
)

// OrderResult is the carrier's synchronous answer to a purchase. Most
// orders finish asynchronously; OrderID is the correlation key for the
// completion webhook.
type OrderResult struct {
	OrderID          string              `json:"order_id"`
	Status           OrderStatus         `json:"status"`
	ExternalNumberID string              `json:"external_number_id,omitempty"`
	RequiredFields   []string            `json:"required_fields,omitempty"`
	Deadline         *time.Time          `json:"deadline,omitempty"`
	MonthlyCost      decimal.NullDecimal `json:"monthly_cost,omitempty"`
}

// ExternalGroup is a remote requirement group as reported at creation.
type ExternalGroup struct {
	ID     string       `json:"id"`
	Zone   string       `json:"zone"`
	Fields []GroupField `json:"fields"`
}

// GroupField describes one regulatory field the carrier wants.
type GroupField struct {
	Name      string `json:"name"`
	Type      string `json:"type"` // text or document
	Mandatory bool   `json:"mandatory"`
}
