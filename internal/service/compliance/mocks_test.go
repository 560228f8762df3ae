package compliance

import (
	"context"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/requirement"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockGroupRepository struct {
	mock.Mock
}

func (m *MockGroupRepository) Create(ctx context.Context, g *requirement.Group) error {
	return m.Called(ctx, g).Error(0)
}

func (m *MockGroupRepository) Update(ctx context.Context, g *requirement.Group) error {
	return m.Called(ctx, g).Error(0)
}

func (m *MockGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*requirement.Group, error) {
	args := m.Called(ctx, id)
	if g := args.Get(0); g != nil {
		return g.(*requirement.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGroupRepository) GetByExternalID(ctx context.Context, externalID string) (*requirement.Group, error) {
	args := m.Called(ctx, externalID)
	if g := args.Get(0); g != nil {
		return g.(*requirement.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGroupRepository) GetByOrganizationAndZone(ctx context.Context, orgID uuid.UUID, zone string) (*requirement.Group, error) {
	args := m.Called(ctx, orgID, zone)
	if g := args.Get(0); g != nil {
		return g.(*requirement.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockCarrierClient struct {
	mock.Mock
	provider string
}

func (m *MockCarrierClient) SearchAvailable(ctx context.Context, countryCode string, limit int) ([]carrier.CandidateNumber, error) {
	args := m.Called(ctx, countryCode, limit)
	if c := args.Get(0); c != nil {
		return c.([]carrier.CandidateNumber), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCarrierClient) Purchase(ctx context.Context, req carrier.PurchaseRequest) (*carrier.OrderResult, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*carrier.OrderResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCarrierClient) CreateRequirementGroup(ctx context.Context, zone string) (*carrier.ExternalGroup, error) {
	args := m.Called(ctx, zone)
	if g := args.Get(0); g != nil {
		return g.(*carrier.ExternalGroup), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCarrierClient) UpdateRequirementGroup(ctx context.Context, groupID string, fields map[string]string) error {
	return m.Called(ctx, groupID, fields).Error(0)
}

func (m *MockCarrierClient) Provider() string {
	if m.provider != "" {
		return m.provider
	}
	return "telnyx"
}

type staticResolver struct {
	client carrier.Client
	err    error
}

func (r staticResolver) ClientFor(provider number.ProviderType) (carrier.Client, error) {
	return r.client, r.err
}
