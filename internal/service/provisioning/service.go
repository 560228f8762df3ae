package provisioning

import (
	"context"
	"log/slog"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/repository"
	"github.com/google/uuid"
)

const defaultSearchLimit = 10

// Config tunes the orchestrator.
type Config struct {
	// PrimaryProvider is used when a search does not name one.
	PrimaryProvider number.ProviderType
	// RegulatedZones lists destination zones where the regulated
	// provider refuses orders without an approved requirement group.
	RegulatedZones map[string]bool
}

// DefaultRegulatedZones covers the zones the carriers currently gate
// behind regulatory review.
func DefaultRegulatedZones() map[string]bool {
	return map[string]bool{
		"DE": true, "FR": true, "ES": true, "IT": true, "NL": true, "JP": true,
	}
}

type service struct {
	numbers NumberRepository
	groups  GroupReader
	clients ClientResolver
	metrics MetricsCollector
	config  Config
	logger  *slog.Logger
}

// NewService creates a new provisioning service
func NewService(
	numbers NumberRepository,
	groups GroupReader,
	clients ClientResolver,
	metrics MetricsCollector,
	config Config,
	logger *slog.Logger,
) Service {
	if config.RegulatedZones == nil {
		config.RegulatedZones = DefaultRegulatedZones()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		numbers: numbers,
		groups:  groups,
		clients: clients,
		metrics: metrics,
		config:  config,
		logger:  logger,
	}
}

func (s *service) Search(ctx context.Context, query SearchQuery) (*SearchResult, error) {
	if query.Zone == "" {
		return nil, errors.NewValidationError("MISSING_ZONE", "destination zone is required")
	}

	provider := s.config.PrimaryProvider
	if query.Provider != nil {
		provider = *query.Provider
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	client, err := s.clients.ClientFor(provider)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	candidates, err := client.SearchAvailable(ctx, query.Zone, limit)
	if s.metrics != nil {
		s.metrics.RecordSearch(ctx, provider.String(), float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		// A credential problem on one provider should not take down the
		// whole search surface; hand the caller an empty page and a
		// diagnostic so it can fall back to the alternate provider.
		if errors.IsType(err, errors.ErrorTypeAuthentication) {
			s.logger.WarnContext(ctx, "carrier search degraded by authentication failure",
				"provider", provider.String(), "zone", query.Zone, "error", err)
			return &SearchResult{
				Provider:   provider.String(),
				Candidates: []carrier.CandidateNumber{},
				Diagnostic: "carrier credentials rejected for " + provider.String() + "; try the alternate provider",
			}, nil
		}
		return nil, err
	}

	return &SearchResult{Provider: provider.String(), Candidates: candidates}, nil
}

func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*NumberProjection, error) {
	if input.Phone.IsEmpty() {
		return nil, errors.NewValidationError("MISSING_NUMBER", "phone number is required")
	}
	if input.OrganizationID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ORGANIZATION", "organization id is required")
	}
	if input.SubscriptionUnitID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SUBSCRIPTION_UNIT", "subscription unit id is required")
	}

	// One live number per subscription unit. The partial unique index is
	// the real guard; this check exists to fail fast with a clean
	// conflict before any carrier call.
	if live, err := s.numbers.FindLiveBySubscriptionUnit(ctx, input.SubscriptionUnitID); err == nil {
		if live.Phone.Equal(input.Phone) {
			// Retry of the same purchase: converge on the existing record.
			return Project(live), nil
		}
		if s.metrics != nil {
			s.metrics.RecordPurchaseConflict(ctx)
		}
		return nil, errors.ErrUnitHasLiveNumber
	} else if !repository.IsNotFound(err) {
		return nil, errors.NewInternalError("checking live numbers for unit").WithCause(err)
	}

	groupExternalID := ""
	if s.requiresRequirementGroup(input.Provider, input.Zone) {
		if input.RequirementGroupID == nil {
			return nil, errors.ErrGroupRequired
		}
		group, err := s.groups.GetByID(ctx, *input.RequirementGroupID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, errors.ErrGroupNotFound
			}
			return nil, errors.NewInternalError("looking up requirement group").WithCause(err)
		}
		if group.OrganizationID != input.OrganizationID {
			return nil, errors.NewValidationError("GROUP_ORGANIZATION_MISMATCH", "requirement group belongs to a different organization")
		}
		groupExternalID = group.ExternalGroupID
	}

	client, err := s.clients.ClientFor(input.Provider)
	if err != nil {
		return nil, err
	}

	result, err := client.Purchase(ctx, carrier.PurchaseRequest{
		Phone:                      input.Phone,
		RequirementGroupExternalID: groupExternalID,
	})
	if s.metrics != nil {
		s.metrics.RecordPurchase(ctx, input.Provider.String(), err)
	}
	if err != nil {
		return nil, err
	}

	n, existed, err := s.materialize(ctx, input)
	if err != nil {
		return nil, err
	}
	s.applyOrderResult(n, result)

	if err := s.persist(ctx, n, existed); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "number order placed",
		"phone_number", n.Phone.E164(), "provider", n.Provider.String(),
		"status", n.Status.String(), "order_reference", n.ExternalOrderID)
	return Project(n), nil
}

func (s *service) HasLiveNumber(ctx context.Context, unitID uuid.UUID) (*NumberProjection, error) {
	if unitID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SUBSCRIPTION_UNIT", "subscription unit id is required")
	}
	live, err := s.numbers.FindLiveBySubscriptionUnit(ctx, unitID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.NewInternalError("checking live numbers for unit").WithCause(err)
	}
	return Project(live), nil
}

// materialize finds or creates the local record for the target number.
// A record left over from an earlier attempt is reused in place, which
// absorbs client retries and webhook races without duplicate rows.
func (s *service) materialize(ctx context.Context, input PurchaseInput) (*number.Number, bool, error) {
	existing, err := s.numbers.GetByPhone(ctx, input.Phone)
	if err == nil {
		existing.Provider = input.Provider
		existing.SubscriptionUnitID = input.SubscriptionUnitID
		existing.RequirementGroupID = input.RequirementGroupID
		if !existing.Status.IsLive() {
			// A leftover failed attempt restarts from scratch.
			existing.Status = number.StatusPending
			existing.ExternalOrderID = ""
			existing.ExternalNumberID = ""
			existing.RequiredFields = nil
			existing.OrderDeadline = nil
		}
		return existing, true, nil
	}
	if !repository.IsNotFound(err) {
		return nil, false, errors.NewInternalError("looking up phone number").WithCause(err)
	}

	n, err := number.NewNumber(input.Phone, input.Provider, input.OrganizationID, input.SubscriptionUnitID)
	if err != nil {
		return nil, false, errors.NewValidationError("INVALID_PURCHASE", err.Error())
	}
	n.RequirementGroupID = input.RequirementGroupID
	n.Features = number.Features{
		Voice: carrier.Known(input.Capabilities.Voice),
		SMS:   carrier.Known(input.Capabilities.SMS),
		MMS:   carrier.Known(input.Capabilities.MMS),
	}
	return n, false, nil
}

// applyOrderResult folds the carrier's synchronous answer into the
// record. The quoted price is kept verbatim, never recomputed.
func (s *service) applyOrderResult(n *number.Number, result *carrier.OrderResult) {
	n.ExternalOrderID = result.OrderID
	if result.MonthlyCost.Valid {
		n.MonthlyCost = result.MonthlyCost
	}

	switch result.Status {
	case carrier.OrderStatusCompleted:
		_ = n.Activate(result.ExternalNumberID)
	case carrier.OrderStatusRequirements:
		_ = n.MarkRequirementsPending(result.RequiredFields, result.Deadline)
	case carrier.OrderStatusFailed:
		n.Fail()
	default:
		// Order accepted; completion arrives by webhook.
		n.Status = number.StatusPending
	}
}

func (s *service) persist(ctx context.Context, n *number.Number, existed bool) error {
	var err error
	if existed {
		err = s.numbers.Update(ctx, n)
	} else {
		err = s.numbers.Create(ctx, n)
	}
	if err != nil {
		if repository.IsDuplicateKeyViolation(err) {
			// Lost a race on one of the uniqueness constraints.
			if s.metrics != nil {
				s.metrics.RecordPurchaseConflict(ctx)
			}
			return errors.NewConflictError("a concurrent purchase won this number or subscription unit").WithCause(err)
		}
		return errors.NewInternalError("persisting phone number").WithCause(err)
	}
	return nil
}

func (s *service) requiresRequirementGroup(provider number.ProviderType, zone string) bool {
	// Only the provider with requirement-group support gates orders on
	// regulatory approval.
	return provider == number.ProviderTelnyx && s.config.RegulatedZones[zone]
}
