package rest

import (
	"context"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/requirement"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/davidleathers/number-provisioning-backend/internal/service/compliance"
	"github.com/davidleathers/number-provisioning-backend/internal/service/provisioning"
	"github.com/davidleathers/number-provisioning-backend/internal/service/reconciler"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockProvisioningService struct {
	mock.Mock
}

func (m *MockProvisioningService) Search(ctx context.Context, query provisioning.SearchQuery) (*provisioning.SearchResult, error) {
	args := m.Called(ctx, query)
	if r := args.Get(0); r != nil {
		return r.(*provisioning.SearchResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvisioningService) Purchase(ctx context.Context, input provisioning.PurchaseInput) (*provisioning.NumberProjection, error) {
	args := m.Called(ctx, input)
	if r := args.Get(0); r != nil {
		return r.(*provisioning.NumberProjection), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvisioningService) HasLiveNumber(ctx context.Context, unitID uuid.UUID) (*provisioning.NumberProjection, error) {
	args := m.Called(ctx, unitID)
	if r := args.Get(0); r != nil {
		return r.(*provisioning.NumberProjection), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockComplianceService struct {
	mock.Mock
}

func (m *MockComplianceService) GetOrCreate(ctx context.Context, provider number.ProviderType, orgID uuid.UUID, zone string) (*requirement.Group, error) {
	args := m.Called(ctx, provider, orgID, zone)
	if g := args.Get(0); g != nil {
		return g.(*requirement.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockComplianceService) SubmitRequirements(ctx context.Context, groupID uuid.UUID, values map[string]string) (*requirement.Group, error) {
	args := m.Called(ctx, groupID, values)
	if g := args.Get(0); g != nil {
		return g.(*requirement.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockComplianceService) ApplyRemoteStatus(ctx context.Context, externalGroupID string, fields []carrier.FieldEvent) (*compliance.RemoteStatusResult, error) {
	args := m.Called(ctx, externalGroupID, fields)
	if res := args.Get(0); res != nil {
		return res.(*compliance.RemoteStatusResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockComplianceService) GetGroup(ctx context.Context, groupID uuid.UUID) (*requirement.Group, error) {
	args := m.Called(ctx, groupID)
	if g := args.Get(0); g != nil {
		return g.(*requirement.Group), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockWebhookService struct {
	mock.Mock
}

func (m *MockWebhookService) Handle(ctx context.Context, rawBody []byte, signatureHeader, timestampHeader string) (*reconciler.Result, error) {
	args := m.Called(ctx, rawBody, signatureHeader, timestampHeader)
	if r := args.Get(0); r != nil {
		return r.(*reconciler.Result), args.Error(1)
	}
	return nil, args.Error(1)
}
