package rest

import (
	"encoding/json"
	"net/http"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// PurchaseRequest is the body for POST /api/v1/numbers.
type PurchaseRequest struct {
	PhoneNumber        string `json:"phone_number" validate:"required,e164"`
	Provider           string `json:"provider" validate:"required,oneof=twilio telnyx"`
	Zone               string `json:"zone" validate:"required,len=2"`
	OrganizationID     string `json:"organization_id" validate:"required,uuid4"`
	SubscriptionUnitID string `json:"subscription_unit_id" validate:"required,uuid4"`
	RequirementGroupID string `json:"requirement_group_id,omitempty" validate:"omitempty,uuid4"`

	Capabilities *CapabilitiesRequest `json:"capabilities,omitempty"`
}

// CapabilitiesRequest echoes the flags reported at search time. Absent
// flags are unknown, not false.
type CapabilitiesRequest struct {
	Voice *bool `json:"voice,omitempty"`
	SMS   *bool `json:"sms,omitempty"`
	MMS   *bool `json:"mms,omitempty"`
}

// CreateGroupRequest is the body for POST /api/v1/requirement-groups.
type CreateGroupRequest struct {
	Provider        string `json:"provider" validate:"required,oneof=twilio telnyx"`
	OrganizationID  string `json:"organization_id" validate:"required,uuid4"`
	DestinationZone string `json:"destination_zone" validate:"required,len=2"`
}

// SubmitRequirementsRequest is the body for
// POST /api/v1/requirement-groups/{id}/requirements.
type SubmitRequirementsRequest struct {
	Values map[string]string `json:"values" validate:"required,min=1"`
}

// decodeAndValidate parses a JSON body into dst and runs struct
// validation, returning a domain error ready for writeError.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewValidationError("INVALID_JSON", "request body is not valid JSON").WithCause(err)
	}
	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}
