package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/values"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/repository"
	"github.com/google/uuid"
)

type service struct {
	compliance ComplianceApplier
	numbers    NumberRepository
	verifier   Verifier
	cache      EventCache
	metrics    MetricsCollector
	logger     *slog.Logger
}

// NewService creates a new reconciler service
func NewService(
	compliance ComplianceApplier,
	numbers NumberRepository,
	verifier Verifier,
	cache EventCache,
	metrics MetricsCollector,
	logger *slog.Logger,
) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		compliance: compliance,
		numbers:    numbers,
		verifier:   verifier,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
	}
}

func (s *service) Handle(ctx context.Context, rawBody []byte, signatureHeader, timestampHeader string) (*Result, error) {
	if err := s.verifier.Verify(rawBody, signatureHeader, timestampHeader); err != nil {
		if s.metrics != nil {
			s.metrics.RecordWebhookRejected(ctx, "signature")
		}
		return nil, err
	}

	// Dedup after verification so forged bodies cannot poison the cache.
	if s.cache != nil && s.cache.Seen(ctx, rawBody) {
		if s.metrics != nil {
			s.metrics.RecordWebhookDuplicate(ctx)
		}
		return &Result{Outcome: OutcomeDuplicate}, nil
	}

	event, err := carrier.ParseEvent(rawBody)
	if err != nil {
		s.forget(ctx, rawBody)
		if s.metrics != nil {
			s.metrics.RecordWebhookRejected(ctx, "malformed")
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordWebhook(ctx, event.Type)
	}

	start := time.Now()
	result, err := s.dispatch(ctx, event)
	if err != nil {
		// Release the dedup slot so the carrier's redelivery gets a
		// fresh attempt once the fault clears.
		s.forget(ctx, rawBody)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordWebhookApply(ctx, event.Type, float64(time.Since(start).Milliseconds()))
	}
	result.EventType = event.Type
	return result, nil
}

func (s *service) dispatch(ctx context.Context, event *carrier.Event) (*Result, error) {
	switch {
	case event.Group != nil:
		return s.applyGroupEvent(ctx, event.Group)
	case event.Order != nil:
		return s.applyOrderEvent(ctx, event.Order)
	default:
		// Unknown event types are acknowledged so the carrier stops
		// redelivering things this service will never understand.
		s.logger.InfoContext(ctx, "ignoring unrecognized carrier event", "event_type", event.Type)
		return &Result{Outcome: OutcomeIgnored, Detail: "unrecognized event type"}, nil
	}
}

func (s *service) applyGroupEvent(ctx context.Context, ev *carrier.GroupEvent) (*Result, error) {
	res, err := s.compliance.ApplyRemoteStatus(ctx, ev.ExternalGroupID, ev.Fields)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			// The carrier knows groups this service never created, or the
			// creation write has not landed yet. Either way redelivery
			// will not help, so acknowledge.
			s.logger.WarnContext(ctx, "group event references unknown requirement group",
				"external_group_id", ev.ExternalGroupID)
			return &Result{Outcome: OutcomeIgnored, Detail: "unknown requirement group"}, nil
		}
		return nil, err
	}

	rejectedInEvent := false
	for _, f := range ev.Fields {
		if f.Status == "rejected" {
			rejectedInEvent = true
			if s.metrics != nil {
				s.metrics.RecordFieldRejected(ctx)
			}
		}
	}

	// Numbers blocked on this group follow its fate. The cascade keys
	// off the group's current state rather than the transition, so a
	// redelivery repairs a cascade that failed after the group update
	// had already persisted.
	group := res.Group
	var cascaded int64
	if group.IsApproved() {
		if res.ApprovedNow && s.metrics != nil {
			s.metrics.RecordGroupApproved(ctx)
		}
		cascaded, err = s.cascade(ctx, group.ID, number.RequirementStatusApproved)
		if err != nil {
			return nil, err
		}
	} else if rejectedInEvent && group.HasRejections() {
		cascaded, err = s.cascade(ctx, group.ID, number.RequirementStatusRejected)
		if err != nil {
			return nil, err
		}
	}

	if !res.Changed && cascaded == 0 {
		return &Result{Outcome: OutcomeIgnored, Detail: "no state change"}, nil
	}
	return &Result{Outcome: OutcomeApplied}, nil
}

func (s *service) cascade(ctx context.Context, groupID uuid.UUID, status number.RequirementStatus) (int64, error) {
	updated, err := s.numbers.UpdateRequirementStatusByGroup(ctx, groupID, status)
	if err != nil {
		return 0, errors.NewInternalError("cascading requirement status to numbers").WithCause(err)
	}
	if updated > 0 {
		s.logger.InfoContext(ctx, "cascaded requirement status to numbers",
			"group_id", groupID, "requirement_status", status.String(), "numbers", updated)
	}
	return updated, nil
}

func (s *service) applyOrderEvent(ctx context.Context, ev *carrier.OrderEvent) (*Result, error) {
	n, err := s.numbers.GetByExternalOrderID(ctx, ev.ExternalOrderID)
	if err != nil {
		if repository.IsNotFound(err) {
			return s.upsertFromOrderEvent(ctx, ev)
		}
		return nil, errors.NewInternalError("looking up number by order reference").WithCause(err)
	}

	changed, detail := s.applyOrderStatus(ctx, n, ev)
	if !changed {
		return &Result{Outcome: OutcomeIgnored, Detail: detail}, nil
	}
	if err := s.numbers.Update(ctx, n); err != nil {
		return nil, errors.NewInternalError("persisting number update").WithCause(err)
	}
	s.logger.InfoContext(ctx, "order event applied",
		"order_reference", ev.ExternalOrderID, "phone_number", n.Phone.E164(), "status", n.Status.String())
	return &Result{Outcome: OutcomeApplied}, nil
}

// applyOrderStatus folds an order event into the record. Out-of-order
// deliveries that would move an active number backwards are dropped.
func (s *service) applyOrderStatus(ctx context.Context, n *number.Number, ev *carrier.OrderEvent) (bool, string) {
	switch carrier.OrderStatus(ev.Status) {
	case carrier.OrderStatusCompleted:
		if n.Status == number.StatusActive {
			return false, "number already active"
		}
		if err := n.Activate(ev.ExternalNumberID); err != nil {
			s.logger.WarnContext(ctx, "completion event for failed number dropped",
				"order_reference", ev.ExternalOrderID, "error", err)
			return false, "number previously failed"
		}
		return true, ""
	case carrier.OrderStatusRequirements:
		if n.Status == number.StatusActive {
			return false, "stale event for active number"
		}
		if err := n.MarkRequirementsPending(ev.RequiredFields, ev.Deadline); err != nil {
			return false, "number in terminal state"
		}
		return true, ""
	case carrier.OrderStatusFailed:
		if n.Status == number.StatusActive {
			return false, "stale failure for active number"
		}
		n.Fail()
		return true, ""
	case carrier.OrderStatusPending:
		if n.Status != number.StatusPending {
			return false, "stale event"
		}
		if err := n.MarkProvisioning(); err != nil {
			return false, "number in terminal state"
		}
		return true, ""
	default:
		s.logger.WarnContext(ctx, "order event carries unknown status",
			"order_reference", ev.ExternalOrderID, "status", ev.Status)
		return false, "unknown order status"
	}
}

// upsertFromOrderEvent covers the race where the carrier's event beats
// the purchase path's own write, and carrier-side console orders this
// service never placed. When the payload identifies the owner the
// record is created from the event; otherwise it is acknowledged and
// logged for investigation.
func (s *service) upsertFromOrderEvent(ctx context.Context, ev *carrier.OrderEvent) (*Result, error) {
	orgID, errOrg := uuid.Parse(ev.OrganizationID)
	unitID, errUnit := uuid.Parse(ev.SubscriptionUnit)
	phone, errPhone := values.NewPhoneNumber(ev.PhoneNumber)
	provider, errProv := number.ParseProvider(ev.Provider)
	if errOrg != nil || errUnit != nil || errPhone != nil || errProv != nil {
		s.logger.WarnContext(ctx, "order event references unknown order and cannot be materialized",
			"order_reference", ev.ExternalOrderID, "status", ev.Status)
		return &Result{Outcome: OutcomeIgnored, Detail: "unknown order"}, nil
	}

	n, err := number.NewNumber(phone, provider, orgID, unitID)
	if err != nil {
		return &Result{Outcome: OutcomeIgnored, Detail: "unknown order"}, nil
	}
	n.ExternalOrderID = ev.ExternalOrderID
	if changed, _ := s.applyOrderStatus(ctx, n, ev); !changed && carrier.OrderStatus(ev.Status) != carrier.OrderStatusPending {
		return &Result{Outcome: OutcomeIgnored, Detail: "unknown order status"}, nil
	}

	if err := s.numbers.Create(ctx, n); err != nil {
		if repository.IsDuplicateKeyViolation(err) {
			// The purchase path's write landed between our lookup and
			// this insert. Let the carrier redeliver against it.
			return nil, errors.NewUnavailableError("EVENT_RACE", "order record appeared concurrently, retry").WithCause(err)
		}
		return nil, errors.NewInternalError("materializing number from order event").WithCause(err)
	}
	s.logger.InfoContext(ctx, "number materialized from order event",
		"order_reference", ev.ExternalOrderID, "phone_number", n.Phone.E164(), "status", n.Status.String())
	return &Result{Outcome: OutcomeApplied}, nil
}

func (s *service) forget(ctx context.Context, rawBody []byte) {
	if s.cache != nil {
		s.cache.Forget(ctx, rawBody)
	}
}
