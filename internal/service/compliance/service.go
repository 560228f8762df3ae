package compliance

import (
	"context"
	"log/slog"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/requirement"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/repository"
	"github.com/google/uuid"
)

type service struct {
	groups  GroupRepository
	clients ClientResolver
	metrics MetricsCollector
	logger  *slog.Logger
}

// NewService creates a new compliance service
func NewService(groups GroupRepository, clients ClientResolver, metrics MetricsCollector, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{groups: groups, clients: clients, metrics: metrics, logger: logger}
}

func (s *service) GetOrCreate(ctx context.Context, provider number.ProviderType, orgID uuid.UUID, zone string) (*requirement.Group, error) {
	if orgID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ORGANIZATION", "organization id is required")
	}
	if zone == "" {
		return nil, errors.NewValidationError("MISSING_ZONE", "destination zone is required")
	}

	existing, err := s.groups.GetByOrganizationAndZone(ctx, orgID, zone)
	if err == nil {
		return existing, nil
	}
	if !repository.IsNotFound(err) {
		return nil, errors.NewInternalError("looking up requirement group").WithCause(err)
	}

	client, err := s.clients.ClientFor(provider)
	if err != nil {
		return nil, err
	}

	// Remote creation failures surface unmodified: the local store must
	// never hold a group the carrier did not confirm.
	ext, err := client.CreateRequirementGroup(ctx, zone)
	if err != nil {
		return nil, err
	}

	group, err := requirement.NewGroup(ext.ID, orgID, zone, client.Provider(), seedFields(ext.Fields))
	if err != nil {
		return nil, errors.NewInternalError("building requirement group").WithCause(err)
	}

	if err := s.groups.Create(ctx, group); err != nil {
		if repository.IsDuplicateKeyViolation(err) {
			// A concurrent caller created the group first; converge on the
			// winner rather than surfacing the race.
			winner, lookupErr := s.groups.GetByOrganizationAndZone(ctx, orgID, zone)
			if lookupErr == nil {
				s.logger.InfoContext(ctx, "requirement group create raced, converging on existing group",
					"organization_id", orgID, "zone", zone, "external_group_id", winner.ExternalGroupID)
				return winner, nil
			}
		}
		return nil, errors.NewInternalError("persisting requirement group").WithCause(err)
	}

	if s.metrics != nil {
		s.metrics.RecordGroupCreated(ctx, client.Provider())
	}
	s.logger.InfoContext(ctx, "requirement group created",
		"organization_id", orgID, "zone", zone,
		"provider", client.Provider(), "external_group_id", ext.ID,
		"fields", len(group.Requirements))
	return group, nil
}

func (s *service) SubmitRequirements(ctx context.Context, groupID uuid.UUID, values map[string]string) (*requirement.Group, error) {
	if len(values) == 0 {
		return nil, errors.NewValidationError("EMPTY_SUBMISSION", "at least one field value is required")
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errors.ErrGroupNotFound
		}
		return nil, errors.NewInternalError("looking up requirement group").WithCause(err)
	}

	providerType, err := number.ParseProvider(group.Provider)
	if err != nil {
		return nil, errors.NewInternalError("requirement group has unknown provider").WithCause(err)
	}
	client, err := s.clients.ClientFor(providerType)
	if err != nil {
		return nil, err
	}

	// Push remote first; only a confirmed carrier write moves local
	// fields to completed.
	if err := client.UpdateRequirementGroup(ctx, group.ExternalGroupID, values); err != nil {
		return nil, err
	}

	for name, value := range values {
		group.RecordSubmission(name, value)
	}
	if err := s.groups.Update(ctx, group); err != nil {
		return nil, errors.NewInternalError("persisting requirement submission").WithCause(err)
	}
	return group, nil
}

func (s *service) ApplyRemoteStatus(ctx context.Context, externalGroupID string, fields []carrier.FieldEvent) (*RemoteStatusResult, error) {
	group, err := s.groups.GetByExternalID(ctx, externalGroupID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errors.ErrGroupNotFound
		}
		return nil, errors.NewInternalError("looking up requirement group").WithCause(err)
	}

	wasApproved := group.IsApproved()
	changed := false
	for _, f := range fields {
		status, err := requirement.ParseFieldStatus(f.Status)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping field update with unknown status",
				"external_group_id", externalGroupID, "field", f.FieldName, "status", f.Status)
			continue
		}
		if group.ApplyFieldStatus(f.FieldName, status, f.RejectionReason) {
			changed = true
		}
	}

	if !changed {
		return &RemoteStatusResult{Group: group}, nil
	}

	if err := s.groups.Update(ctx, group); err != nil {
		return nil, errors.NewInternalError("persisting requirement group update").WithCause(err)
	}

	approvedNow := !wasApproved && group.IsApproved()
	if approvedNow {
		s.logger.InfoContext(ctx, "requirement group fully approved",
			"external_group_id", externalGroupID, "zone", group.DestinationZone)
	}
	return &RemoteStatusResult{Group: group, Changed: true, ApprovedNow: approvedNow}, nil
}

func (s *service) GetGroup(ctx context.Context, groupID uuid.UUID) (*requirement.Group, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errors.ErrGroupNotFound
		}
		return nil, errors.NewInternalError("looking up requirement group").WithCause(err)
	}
	return group, nil
}

func seedFields(fields []carrier.GroupField) []requirement.Requirement {
	seeded := make([]requirement.Requirement, 0, len(fields))
	for _, f := range fields {
		seeded = append(seeded, requirement.Requirement{
			FieldName: f.Name,
			FieldType: requirement.ParseFieldType(f.Type),
			Mandatory: f.Mandatory,
		})
	}
	return seeded
}
