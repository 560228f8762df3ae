package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/requirement"
	"github.com/davidleathers/number-provisioning-backend/internal/service/provisioning"
	"github.com/google/uuid"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps an ErrorBody in the standard envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// SearchResponse is the payload for number search.
type SearchResponse = provisioning.SearchResult

// NumberResponse is the caller-facing view of a number.
type NumberResponse = provisioning.NumberProjection

// GroupResponse is the caller-facing view of a requirement group.
// Submitted field values are redacted; collaborators only need the
// review status of each field.
type GroupResponse struct {
	ID              uuid.UUID               `json:"id"`
	OrganizationID  uuid.UUID               `json:"organization_id"`
	DestinationZone string                  `json:"destination_zone"`
	Provider        string                  `json:"provider"`
	Status          requirement.GroupStatus `json:"status"`
	Requirements    []GroupFieldResponse    `json:"requirements"`
}

// GroupFieldResponse is one field's review state within a group.
type GroupFieldResponse struct {
	FieldName       string                  `json:"field_name"`
	FieldType       requirement.FieldType   `json:"field_type"`
	Mandatory       bool                    `json:"mandatory"`
	Status          requirement.FieldStatus `json:"status"`
	RejectionReason string                  `json:"rejection_reason,omitempty"`
}

func toGroupResponse(g *requirement.Group) *GroupResponse {
	resp := &GroupResponse{
		ID:              g.ID,
		OrganizationID:  g.OrganizationID,
		DestinationZone: g.DestinationZone,
		Provider:        g.Provider,
		Status:          g.Status,
		Requirements:    make([]GroupFieldResponse, 0, len(g.Requirements)),
	}
	for _, r := range g.Requirements {
		resp.Requirements = append(resp.Requirements, GroupFieldResponse{
			FieldName:       r.FieldName,
			FieldType:       r.FieldType,
			Mandatory:       r.Mandatory,
			Status:          r.Status,
			RejectionReason: r.RejectionReason,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding response body", "error", err)
	}
}
