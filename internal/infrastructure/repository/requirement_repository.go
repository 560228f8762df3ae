package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/requirement"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RequirementGroupRepository persists compliance bundles. The unique
// index on (organization_id, destination_zone) is the serialization
// point for concurrent group creation; the remote pre-check is only a
// best-effort fast path.
type RequirementGroupRepository struct {
	db *pgxpool.Pool
}

func NewRequirementGroupRepository(db *pgxpool.Pool) *RequirementGroupRepository {
	return &RequirementGroupRepository{db: db}
}

const groupColumns = `
	id, external_group_id, organization_id, destination_zone, provider,
	status, requirements, created_at, updated_at`

// Create inserts a new group. Returns ErrDuplicateKey when another
// caller won the (organization, zone) race.
func (r *RequirementGroupRepository) Create(ctx context.Context, g *requirement.Group) error {
	reqs, err := json.Marshal(g.Requirements)
	if err != nil {
		return fmt.Errorf("marshaling requirements: %w", err)
	}

	query := `
		INSERT INTO requirement_groups (` + groupColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		g.ID, g.ExternalGroupID, g.OrganizationID, g.DestinationZone, g.Provider,
		g.Status.String(), reqs, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
		return fmt.Errorf("inserting requirement group: %w", err)
	}
	return nil
}

// Update rewrites a group's status and field entries.
func (r *RequirementGroupRepository) Update(ctx context.Context, g *requirement.Group) error {
	reqs, err := json.Marshal(g.Requirements)
	if err != nil {
		return fmt.Errorf("marshaling requirements: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE requirement_groups SET status = $2, requirements = $3, updated_at = $4
		WHERE id = $1
	`, g.ID, g.Status.String(), reqs, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating requirement group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a group by its internal id.
func (r *RequirementGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*requirement.Group, error) {
	row := r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM requirement_groups WHERE id = $1`, id)
	return scanGroup(row)
}

// GetByExternalID retrieves a group by its carrier-side id. This is the
// reconciliation path for async review events.
func (r *RequirementGroupRepository) GetByExternalID(ctx context.Context, externalID string) (*requirement.Group, error) {
	row := r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM requirement_groups WHERE external_group_id = $1`, externalID)
	return scanGroup(row)
}

// GetByOrganizationAndZone retrieves the unique group for an
// (organization, zone) pair.
func (r *RequirementGroupRepository) GetByOrganizationAndZone(ctx context.Context, orgID uuid.UUID, zone string) (*requirement.Group, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+groupColumns+` FROM requirement_groups
		WHERE organization_id = $1 AND destination_zone = $2
	`, orgID, zone)
	return scanGroup(row)
}

func scanGroup(row rowScanner) (*requirement.Group, error) {
	var (
		g         requirement.Group
		statusStr string
		reqsJSON  []byte
	)

	err := row.Scan(
		&g.ID, &g.ExternalGroupID, &g.OrganizationID, &g.DestinationZone, &g.Provider,
		&statusStr, &reqsJSON, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning requirement group: %w", err)
	}

	if g.Status, err = requirement.ParseGroupStatus(statusStr); err != nil {
		return nil, err
	}
	if len(reqsJSON) > 0 {
		if err := json.Unmarshal(reqsJSON, &g.Requirements); err != nil {
			return nil, fmt.Errorf("unmarshaling requirements: %w", err)
		}
	}
	return &g, nil
}
