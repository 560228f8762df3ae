package provisioning

import (
	"context"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/requirement"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/values"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockNumberRepository struct {
	mock.Mock
}

func (m *MockNumberRepository) Create(ctx context.Context, n *number.Number) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNumberRepository) Update(ctx context.Context, n *number.Number) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNumberRepository) GetByPhone(ctx context.Context, phone values.PhoneNumber) (*number.Number, error) {
	args := m.Called(ctx, phone)
	if n := args.Get(0); n != nil {
		return n.(*number.Number), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockNumberRepository) FindLiveBySubscriptionUnit(ctx context.Context, unitID uuid.UUID) (*number.Number, error) {
	args := m.Called(ctx, unitID)
	if n := args.Get(0); n != nil {
		return n.(*number.Number), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockGroupReader struct {
	mock.Mock
}

func (m *MockGroupReader) GetByID(ctx context.Context, id uuid.UUID) (*requirement.Group, error) {
	args := m.Called(ctx, id)
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

// countingMetrics is a lightweight collector for asserting outcomes.
type countingMetrics struct {
	searches  int
	purchases int
	failures  int
	conflicts int
}

func (c *countingMetrics) RecordSearch(ctx context.Context, provider string, millis float64) {
	c.searches++
}

func (c *countingMetrics) RecordPurchase(ctx context.Context, provider string, err error) {
	if err != nil {
		c.failures++
		return
	}
	c.purchases++
}

func (c *countingMetrics) RecordPurchaseConflict(ctx context.Context) {
	c.conflicts++
}
