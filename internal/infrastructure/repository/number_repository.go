package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/values"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// NumberRepository persists phone numbers. The partial unique index on
// (subscription_unit_id) over live statuses is the real enforcement of
// the one-live-number invariant; application-level checks are only a
// fast path.
type NumberRepository struct {
	db *pgxpool.Pool
}

func NewNumberRepository(db *pgxpool.Pool) *NumberRepository {
	return &NumberRepository{db: db}
}

const numberColumns = `
	id, phone_number, provider, status,
	voice, sms, mms,
	organization_id, subscription_unit_id,
	external_order_id, external_number_id,
	requirement_group_id, requirement_status,
	required_fields, order_deadline, monthly_cost,
	created_at, updated_at`

// Create inserts a new number row.
func (r *NumberRepository) Create(ctx context.Context, n *number.Number) error {
	fields, err := json.Marshal(n.RequiredFields)
	if err != nil {
		return fmt.Errorf("marshaling required fields: %w", err)
	}

	query := `
		INSERT INTO phone_numbers (` + numberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.db.Exec(ctx, query,
		n.ID, n.Phone.E164(), n.Provider.String(), n.Status.String(),
		n.Features.Voice, n.Features.SMS, n.Features.MMS,
		n.OrganizationID, n.SubscriptionUnitID,
		nullString(n.ExternalOrderID), nullString(n.ExternalNumberID),
		n.RequirementGroupID, n.RequirementStatus.String(),
		fields, n.OrderDeadline, nullDecimal(n.MonthlyCost),
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
		return fmt.Errorf("inserting phone number: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of an existing row.
func (r *NumberRepository) Update(ctx context.Context, n *number.Number) error {
	fields, err := json.Marshal(n.RequiredFields)
	if err != nil {
		return fmt.Errorf("marshaling required fields: %w", err)
	}

	query := `
		UPDATE phone_numbers SET
			provider = $2, status = $3,
			voice = $4, sms = $5, mms = $6,
			subscription_unit_id = $7,
			external_order_id = $8, external_number_id = $9,
			requirement_group_id = $10, requirement_status = $11,
			required_fields = $12, order_deadline = $13, monthly_cost = $14,
			updated_at = $15
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		n.ID, n.Provider.String(), n.Status.String(),
		n.Features.Voice, n.Features.SMS, n.Features.MMS,
		n.SubscriptionUnitID,
		nullString(n.ExternalOrderID), nullString(n.ExternalNumberID),
		n.RequirementGroupID, n.RequirementStatus.String(),
		fields, n.OrderDeadline, nullDecimal(n.MonthlyCost),
		n.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
		return fmt.Errorf("updating phone number: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a number by its internal id.
func (r *NumberRepository) GetByID(ctx context.Context, id uuid.UUID) (*number.Number, error) {
	row := r.db.QueryRow(ctx, `SELECT `+numberColumns+` FROM phone_numbers WHERE id = $1`, id)
	return scanNumber(row)
}

// GetByPhone retrieves the record for a number string. Numbers are
// globally unique across providers.
func (r *NumberRepository) GetByPhone(ctx context.Context, phone values.PhoneNumber) (*number.Number, error) {
	row := r.db.QueryRow(ctx, `SELECT `+numberColumns+` FROM phone_numbers WHERE phone_number = $1`, phone.E164())
	return scanNumber(row)
}

// GetByExternalOrderID retrieves the record correlated to a carrier
// order. This is the reconciliation path for async order events.
func (r *NumberRepository) GetByExternalOrderID(ctx context.Context, orderID string) (*number.Number, error) {
	row := r.db.QueryRow(ctx, `SELECT `+numberColumns+` FROM phone_numbers WHERE external_order_id = $1`, orderID)
	return scanNumber(row)
}

// FindLiveBySubscriptionUnit returns the live number for a unit, if any.
func (r *NumberRepository) FindLiveBySubscriptionUnit(ctx context.Context, unitID uuid.UUID) (*number.Number, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+numberColumns+` FROM phone_numbers
		WHERE subscription_unit_id = $1 AND status IN ('active', 'pending', 'provisioning')
	`, unitID)
	return scanNumber(row)
}

// UpdateRequirementStatusByGroup bulk-moves the requirement status of
// every number attached to a group. Used when a group transitions to
// fully approved, independent of each number's own order event.
func (r *NumberRepository) UpdateRequirementStatusByGroup(ctx context.Context, groupID uuid.UUID, status number.RequirementStatus) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE phone_numbers SET requirement_status = $2, updated_at = now()
		WHERE requirement_group_id = $1 AND requirement_status <> $2
	`, groupID, status.String())
	if err != nil {
		return 0, fmt.Errorf("bulk updating requirement status: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNumber(row rowScanner) (*number.Number, error) {
	var (
		n            number.Number
		phoneStr     string
		providerStr  string
		statusStr    string
		reqStatusStr string
		extOrderID   *string
		extNumberID  *string
		fieldsJSON   []byte
		monthlyCost  *decimal.Decimal
	)

	err := row.Scan(
		&n.ID, &phoneStr, &providerStr, &statusStr,
		&n.Features.Voice, &n.Features.SMS, &n.Features.MMS,
		&n.OrganizationID, &n.SubscriptionUnitID,
		&extOrderID, &extNumberID,
		&n.RequirementGroupID, &reqStatusStr,
		&fieldsJSON, &n.OrderDeadline, &monthlyCost,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning phone number: %w", err)
	}

	phone, err := values.NewPhoneNumberE164(phoneStr)
	if err != nil {
		return nil, fmt.Errorf("stored phone number is invalid: %w", err)
	}
	n.Phone = phone

	if n.Provider, err = number.ParseProvider(providerStr); err != nil {
		return nil, err
	}
	if n.Status, err = number.ParseStatus(statusStr); err != nil {
		return nil, err
	}
	if n.RequirementStatus, err = number.ParseRequirementStatus(reqStatusStr); err != nil {
		return nil, err
	}
	if extOrderID != nil {
		n.ExternalOrderID = *extOrderID
	}
	if extNumberID != nil {
		n.ExternalNumberID = *extNumberID
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &n.RequiredFields); err != nil {
			return nil, fmt.Errorf("unmarshaling required fields: %w", err)
		}
	}
	if monthlyCost != nil {
		n.MonthlyCost = decimal.NewNullDecimal(*monthlyCost)
	}
	return &n, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}
