package provisioning

import (
	"context"
	"testing"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/requirement"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/values"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestService(numbers *MockNumberRepository, groups *MockGroupReader, client *MockCarrierClient, m MetricsCollector) Service {
	return NewService(numbers, groups, staticResolver{client: client}, m, Config{
		PrimaryProvider: number.ProviderTelnyx,
	}, nil)
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to the primary provider", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)
		candidates := []carrier.CandidateNumber{{Phone: values.MustNewPhoneNumber("+15551230001"), CountryCode: "US"}}
		client.On("SearchAvailable", ctx, "US", defaultSearchLimit).Return(candidates, nil)

		svc := newTestService(numbers, new(MockGroupReader), client, nil)
		result, err := svc.Search(ctx, SearchQuery{Zone: "US"})
		require.NoError(t, err)
		assert.Equal(t, "telnyx", result.Provider)
		assert.Len(t, result.Candidates, 1)
		assert.Empty(t, result.Diagnostic)
	})

	t.Run("authentication failure degrades to empty result with diagnostic", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)
		m := &countingMetrics{}
		client.On("SearchAvailable", ctx, "US", defaultSearchLimit).
			Return(nil, errors.NewAuthenticationError("telnyx", "api key rejected"))

		svc := newTestService(numbers, new(MockGroupReader), client, m)
		result, err := svc.Search(ctx, SearchQuery{Zone: "US"})
		require.NoError(t, err, "auth failure must not propagate as an error")
		assert.Empty(t, result.Candidates)
		assert.Contains(t, result.Diagnostic, "credentials rejected")
		assert.Equal(t, 1, m.searches)
	})

	t.Run("other carrier failures propagate", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)
		client.On("SearchAvailable", ctx, "US", defaultSearchLimit).
			Return(nil, errors.NewExternalError("telnyx", "upstream timeout"))

		svc := newTestService(numbers, new(MockGroupReader), client, nil)
		_, err := svc.Search(ctx, SearchQuery{Zone: "US"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeExternal))
	})

	t.Run("zone is required", func(t *testing.T) {
		svc := newTestService(new(MockNumberRepository), new(MockGroupReader), new(MockCarrierClient), nil)
		_, err := svc.Search(ctx, SearchQuery{})
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestService_Purchase(t *testing.T) {
	ctx := context.Background()
	phone := values.MustNewPhoneNumber("+15551234567")
	orgID := uuid.New()
	unitID := uuid.New()

	baseInput := PurchaseInput{
		Phone:              phone,
		Provider:           number.ProviderTelnyx,
		Zone:               "US",
		OrganizationID:     orgID,
		SubscriptionUnitID: unitID,
	}

	t.Run("fresh purchase persists a pending order", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)
		m := &countingMetrics{}

		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(nil, repository.ErrNotFound)
		numbers.On("GetByPhone", ctx, phone).Return(nil, repository.ErrNotFound)
		client.On("Purchase", ctx, carrier.PurchaseRequest{Phone: phone}).
			Return(&carrier.OrderResult{OrderID: "ord_1", Status: carrier.OrderStatusPending}, nil)
		numbers.On("Create", ctx, mock.AnythingOfType("*number.Number")).Return(nil)

		svc := newTestService(numbers, new(MockGroupReader), client, m)
		proj, err := svc.Purchase(ctx, baseInput)
		require.NoError(t, err)
		assert.Equal(t, "pending", proj.Status)
		assert.Equal(t, "ord_1", proj.OrderReference)
		assert.Equal(t, 1, m.purchases)
		numbers.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("retry converges on the live record without a second order", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)
		live, err := number.NewNumber(phone, number.ProviderTelnyx, orgID, unitID)
		require.NoError(t, err)
		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(live, nil)

		svc := newTestService(numbers, new(MockGroupReader), client, nil)
		proj, err := svc.Purchase(ctx, baseInput)
		require.NoError(t, err)
		assert.Equal(t, live.ID, proj.ID, "same internal id, no duplicate")
		client.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
	})

	t.Run("unit holding a different live number conflicts", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)
		m := &countingMetrics{}
		other, err := number.NewNumber(values.MustNewPhoneNumber("+15559990000"), number.ProviderTelnyx, orgID, unitID)
		require.NoError(t, err)
		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(other, nil)

		svc := newTestService(numbers, new(MockGroupReader), client, m)
		_, err = svc.Purchase(ctx, baseInput)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
		assert.Equal(t, 1, m.conflicts)
		client.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
	})

	t.Run("existing non-live record is updated in place", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)
		stale, err := number.NewNumber(phone, number.ProviderTwilio, orgID, uuid.New())
		require.NoError(t, err)
		stale.Fail()

		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(nil, repository.ErrNotFound)
		numbers.On("GetByPhone", ctx, phone).Return(stale, nil)
		client.On("Purchase", ctx, mock.Anything).
			Return(&carrier.OrderResult{OrderID: "ord_2", Status: carrier.OrderStatusCompleted, ExternalNumberID: "num_2"}, nil)
		numbers.On("Update", ctx, stale).Return(nil)

		svc := newTestService(numbers, new(MockGroupReader), client, nil)
		proj, err := svc.Purchase(ctx, baseInput)
		require.NoError(t, err)
		assert.Equal(t, stale.ID, proj.ID, "update in place keeps the internal id")
		assert.Equal(t, "active", proj.Status)
		assert.Equal(t, "telnyx", proj.Provider)
		numbers.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("regulated zone requires a requirement group", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)
		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(nil, repository.ErrNotFound)

		input := baseInput
		input.Zone = "DE"
		input.RequirementGroupID = nil

		svc := newTestService(numbers, new(MockGroupReader), client, nil)
		_, err := svc.Purchase(ctx, input)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		client.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
	})

	t.Run("regulated zone passes the group's external id to the carrier", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		groups := new(MockGroupReader)
		client := new(MockCarrierClient)

		group, err := requirement.NewGroup("rg_ext_9", orgID, "DE", "telnyx", nil)
		require.NoError(t, err)

		dePhone := values.MustNewPhoneNumber("+4930123456")
		deadline := time.Now().UTC().Add(72 * time.Hour)

		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(nil, repository.ErrNotFound)
		groups.On("GetByID", ctx, group.ID).Return(group, nil)
		numbers.On("GetByPhone", ctx, dePhone).Return(nil, repository.ErrNotFound)
		client.On("Purchase", ctx, carrier.PurchaseRequest{Phone: dePhone, RequirementGroupExternalID: "rg_ext_9"}).
			Return(&carrier.OrderResult{
				OrderID:        "ord_3",
				Status:         carrier.OrderStatusRequirements,
				RequiredFields: []string{"business_license"},
				Deadline:       &deadline,
			}, nil)
		numbers.On("Create", ctx, mock.AnythingOfType("*number.Number")).Return(nil)

		input := baseInput
		input.Phone = dePhone
		input.Zone = "DE"
		input.RequirementGroupID = &group.ID

		svc := newTestService(numbers, groups, client, nil)
		proj, err := svc.Purchase(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, "requirements_pending", proj.Status)
		assert.Equal(t, []string{"business_license"}, proj.RequiredFields)
		require.NotNil(t, proj.OrderDeadline)
	})

	t.Run("group from another organization is rejected", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		groups := new(MockGroupReader)
		client := new(MockCarrierClient)

		foreign, err := requirement.NewGroup("rg_other", uuid.New(), "DE", "telnyx", nil)
		require.NoError(t, err)

		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(nil, repository.ErrNotFound)
		groups.On("GetByID", ctx, foreign.ID).Return(foreign, nil)

		input := baseInput
		input.Zone = "DE"
		input.RequirementGroupID = &foreign.ID

		svc := newTestService(numbers, groups, client, nil)
		_, err = svc.Purchase(ctx, input)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("carrier unavailability surfaces verbatim", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)
		m := &countingMetrics{}

		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(nil, repository.ErrNotFound)
		client.On("Purchase", ctx, mock.Anything).Return(nil, errors.ErrNumberTaken)

		svc := newTestService(numbers, new(MockGroupReader), client, m)
		_, err := svc.Purchase(ctx, baseInput)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnavailable))
		assert.Equal(t, 1, m.failures)
		numbers.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("losing a persistence race maps to conflict", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)

		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(nil, repository.ErrNotFound)
		numbers.On("GetByPhone", ctx, phone).Return(nil, repository.ErrNotFound)
		client.On("Purchase", ctx, mock.Anything).
			Return(&carrier.OrderResult{OrderID: "ord_4", Status: carrier.OrderStatusPending}, nil)
		numbers.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateKey)

		svc := newTestService(numbers, new(MockGroupReader), client, nil)
		_, err := svc.Purchase(ctx, baseInput)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
	})

	t.Run("unknown capabilities persist as false", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		client := new(MockCarrierClient)
		voice := true

		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(nil, repository.ErrNotFound)
		numbers.On("GetByPhone", ctx, phone).Return(nil, repository.ErrNotFound)
		client.On("Purchase", ctx, mock.Anything).
			Return(&carrier.OrderResult{OrderID: "ord_5", Status: carrier.OrderStatusPending}, nil)
		numbers.On("Create", ctx, mock.MatchedBy(func(n *number.Number) bool {
			return n.Features.Voice && !n.Features.SMS && !n.Features.MMS
		})).Return(nil)

		input := baseInput
		input.Capabilities = carrier.Capabilities{Voice: &voice} // SMS/MMS unknown

		svc := newTestService(numbers, new(MockGroupReader), client, nil)
		_, err := svc.Purchase(ctx, input)
		require.NoError(t, err)
		numbers.AssertExpectations(t)
	})
}

func TestService_HasLiveNumber(t *testing.T) {
	ctx := context.Background()
	unitID := uuid.New()

	t.Run("returns projection when live", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		live, err := number.NewNumber(values.MustNewPhoneNumber("+15551234567"), number.ProviderTelnyx, uuid.New(), unitID)
		require.NoError(t, err)
		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(live, nil)

		svc := newTestService(numbers, new(MockGroupReader), new(MockCarrierClient), nil)
		proj, err := svc.HasLiveNumber(ctx, unitID)
		require.NoError(t, err)
		require.NotNil(t, proj)
		assert.Equal(t, "+15551234567", proj.PhoneNumber)
	})

	t.Run("returns nil when none", func(t *testing.T) {
		numbers := new(MockNumberRepository)
		numbers.On("FindLiveBySubscriptionUnit", ctx, unitID).Return(nil, repository.ErrNotFound)

		svc := newTestService(numbers, new(MockGroupReader), new(MockCarrierClient), nil)
		proj, err := svc.HasLiveNumber(ctx, unitID)
		require.NoError(t, err)
		assert.Nil(t, proj)
	})
}
