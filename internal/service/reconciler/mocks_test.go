package reconciler

import (
	"context"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/davidleathers/number-provisioning-backend/internal/service/compliance"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockComplianceApplier struct {
	mock.Mock
}

func (m *MockComplianceApplier) ApplyRemoteStatus(ctx context.Context, externalGroupID string, fields []carrier.FieldEvent) (*compliance.RemoteStatusResult, error) {
	args := m.Called(ctx, externalGroupID, fields)
	if res := args.Get(0); res != nil {
		return res.(*compliance.RemoteStatusResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockNumberRepository struct {
	mock.Mock
}

func (m *MockNumberRepository) Create(ctx context.Context, n *number.Number) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNumberRepository) Update(ctx context.Context, n *number.Number) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNumberRepository) GetByExternalOrderID(ctx context.Context, orderID string) (*number.Number, error) {
	args := m.Called(ctx, orderID)
	if n := args.Get(0); n != nil {
		return n.(*number.Number), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockNumberRepository) UpdateRequirementStatusByGroup(ctx context.Context, groupID uuid.UUID, status number.RequirementStatus) (int64, error) {
	args := m.Called(ctx, groupID, status)
	return args.Get(0).(int64), args.Error(1)
}

// acceptAllVerifier bypasses signature checks for tests that exercise
// dispatch rather than authentication.
type acceptAllVerifier struct{}

func (acceptAllVerifier) Verify(rawBody []byte, signatureHeader, timestampHeader string) error {
	return nil
}

// memoryCache is an in-process stand-in for the Redis dedup cache.
type memoryCache struct {
	seen map[string]bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{seen: make(map[string]bool)}
}

func (c *memoryCache) Seen(ctx context.Context, rawBody []byte) bool {
	key := string(rawBody)
	if c.seen[key] {
		return true
	}
	c.seen[key] = true
	return false
}

func (c *memoryCache) Forget(ctx context.Context, rawBody []byte) {
	delete(c.seen, string(rawBody))
}
