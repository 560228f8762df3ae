package compliance

import (
	"context"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/requirement"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/google/uuid"
)

// Service owns the lifecycle of compliance bundles: whether an
// (organization, zone) pair is allowed to activate numbers.
type Service interface {
	// GetOrCreate returns the group for an (organization, zone) pair,
	// creating it at the carrier on first use. Safe under concurrent
	// callers for the same pair.
	GetOrCreate(ctx context.Context, provider number.ProviderType, orgID uuid.UUID, zone string) (*requirement.Group, error)
	// SubmitRequirements pushes field values to the carrier and, only on
	// success, marks the submitted fields completed locally.
	SubmitRequirements(ctx context.Context, groupID uuid.UUID, values map[string]string) (*requirement.Group, error)
	// ApplyRemoteStatus applies carrier-reported per-field review
	// outcomes. Used exclusively by the webhook reconciler.
	ApplyRemoteStatus(ctx context.Context, externalGroupID string, fields []carrier.FieldEvent) (*RemoteStatusResult, error)
	// GetGroup returns a group's status and per-field detail.
	GetGroup(ctx context.Context, groupID uuid.UUID) (*requirement.Group, error)
}

// GroupRepository defines the persistence surface this service needs
// RemoteStatusResult reports how a carrier status event landed: whether
// it changed any field and whether it moved the group to fully approved.
type RemoteStatusResult struct {
	Group       *requirement.Group
	Changed     bool
	ApprovedNow bool
}

type GroupRepository interface {
	Create(ctx context.Context, g *requirement.Group) error
	Update(ctx context.Context, g *requirement.Group) error
	GetByID(ctx context.Context, id uuid.UUID) (*requirement.Group, error)
	GetByExternalID(ctx context.Context, externalID string) (*requirement.Group, error)
	GetByOrganizationAndZone(ctx context.Context, orgID uuid.UUID, zone string) (*requirement.Group, error)
}

// ClientResolver yields the carrier client for a provider
type ClientResolver interface {
	ClientFor(provider number.ProviderType) (carrier.Client, error)
}

// MetricsCollector records compliance outcomes
type MetricsCollector interface {
	RecordGroupCreated(ctx context.Context, provider string)
}
