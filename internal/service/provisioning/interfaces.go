package provisioning

import (
	"context"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/requirement"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/values"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/google/uuid"
)

// Service is the user-facing "find and acquire a number" flow.
type Service interface {
	// Search lists purchasable numbers for a zone. A credential failure
	// on the chosen provider degrades to an empty result with a
	// diagnostic so callers can fall back to the alternate provider.
	Search(ctx context.Context, query SearchQuery) (*SearchResult, error)
	// Purchase places a number order, enforcing the one-live-number
	// invariant and the requirement-group rule for regulated zones.
	// Retried purchases converge on the existing record.
	Purchase(ctx context.Context, input PurchaseInput) (*NumberProjection, error)
	// HasLiveNumber reports whether a subscription unit already holds a
	// live number.
	HasLiveNumber(ctx context.Context, unitID uuid.UUID) (*NumberProjection, error)
}

// NumberRepository defines the persistence surface this service needs
type NumberRepository interface {
	Create(ctx context.Context, n *number.Number) error
	Update(ctx context.Context, n *number.Number) error
	GetByPhone(ctx context.Context, phone values.PhoneNumber) (*number.Number, error)
	FindLiveBySubscriptionUnit(ctx context.Context, unitID uuid.UUID) (*number.Number, error)
}

// GroupReader resolves requirement groups attached to purchases
type GroupReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*requirement.Group, error)
}

// ClientResolver yields the carrier client for a provider
type ClientResolver interface {
	ClientFor(provider number.ProviderType) (carrier.Client, error)
}

// MetricsCollector records provisioning outcomes
type MetricsCollector interface {
	RecordSearch(ctx context.Context, provider string, millis float64)
	RecordPurchase(ctx context.Context, provider string, err error)
	RecordPurchaseConflict(ctx context.Context)
}

// SearchQuery scopes a number search.
type SearchQuery struct {
	Zone     string
	Provider *number.ProviderType // nil means the configured primary
	Limit    int
}

// SearchResult carries candidates plus a diagnostic when the provider
// could not be queried. An empty Candidates with a non-empty Diagnostic
// is a successful, degraded answer, not an error.
type SearchResult struct {
	Provider   string                    `json:"provider"`
	Candidates []carrier.CandidateNumber `json:"candidates"`
	Diagnostic string                    `json:"diagnostic,omitempty"`
}

// PurchaseInput is everything needed to acquire a number for a
// subscription unit.
type PurchaseInput struct {
	Phone              values.PhoneNumber
	Provider           number.ProviderType
	Zone               string
	OrganizationID     uuid.UUID
	SubscriptionUnitID uuid.UUID
	RequirementGroupID *uuid.UUID
	// Capabilities as reported at search time; unknown flags persist as
	// false for display.
	Capabilities carrier.Capabilities
}

// NumberProjection is the caller-facing view of a number. Carrier
// internals stay out of it except the order reference kept for support.
type NumberProjection struct {
	ID                uuid.UUID       `json:"id"`
	PhoneNumber       string          `json:"phone_number"`
	Provider          string          `json:"provider"`
	Status            string          `json:"status"`
	Features          number.Features `json:"features"`
	RequirementStatus string          `json:"requirement_status"`
	RequiredFields    []string        `json:"required_fields,omitempty"`
	OrderDeadline     *time.Time      `json:"order_deadline,omitempty"`
	OrderReference    string          `json:"order_reference,omitempty"`
}

// Project converts a domain number into its caller-facing view.
func Project(n *number.Number) *NumberProjection {
	if n == nil {
		return nil
	}
	return &NumberProjection{
		ID:                n.ID,
		PhoneNumber:       n.Phone.E164(),
		Provider:          n.Provider.String(),
		Status:            n.Status.String(),
		Features:          n.Features,
		RequirementStatus: n.RequirementStatus.String(),
		RequiredFields:    n.RequiredFields,
		OrderDeadline:     n.OrderDeadline,
		OrderReference:    n.ExternalOrderID,
	}
}
