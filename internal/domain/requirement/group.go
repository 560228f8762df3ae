package requirement

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Group is a compliance bundle: the set of regulatory fields and
// documents a carrier requires before numbers in a destination zone may
// activate. A group is uniquely identified by (organization, zone) and
// mirrors a remote group at the carrier. Groups are never deleted; a
// partially rejected group stays around for resubmission.
type Group struct {
	ID              uuid.UUID     `json:"id"`
	ExternalGroupID string        `json:"external_group_id"`
	OrganizationID  uuid.UUID     `json:"organization_id"`
	DestinationZone string        `json:"destination_zone"`
	Provider        string        `json:"provider"`
	Status          GroupStatus   `json:"status"`
	Requirements    []Requirement `json:"requirements"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Requirement is a single regulatory field within a group.
type Requirement struct {
	FieldName       string      `json:"field_name"`
	FieldType       FieldType   `json:"field_type"`
	Mandatory       bool        `json:"mandatory"`
	Value           string      `json:"value,omitempty"`
	Status          FieldStatus `json:"status"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
}

type GroupStatus int

const (
	GroupStatusPending GroupStatus = iota
	GroupStatusActive
	GroupStatusRejected
)

func (s GroupStatus) String() string {
	switch s {
	case GroupStatusPending:
		return "pending"
	case GroupStatusActive:
		return "active"
	case GroupStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ParseGroupStatus converts a stored group status string
func ParseGroupStatus(s string) (GroupStatus, error) {
	switch s {
	case "pending":
		return GroupStatusPending, nil
	case "active":
		return GroupStatusActive, nil
	case "rejected":
		return GroupStatusRejected, nil
	default:
		return GroupStatusPending, fmt.Errorf("unknown group status: %q", s)
	}
}

func (s GroupStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *GroupStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseGroupStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type FieldType int

const (
	FieldTypeText FieldType = iota
	FieldTypeDocument
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeText:
		return "text"
	case FieldTypeDocument:
		return "document"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a carrier-reported field type
func ParseFieldType(s string) FieldType {
	if s == "document" {
		return FieldTypeDocument
	}
	return FieldTypeText
}

func (t FieldType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *FieldType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*t = ParseFieldType(str)
	return nil
}

// FieldStatus orders the review pipeline for a single field. rejected
// sits outside the forward order: it may be applied at any point.
type FieldStatus int

const (
	FieldStatusPending FieldStatus = iota
	FieldStatusCompleted
	FieldStatusApproved
	FieldStatusRejected
)

func (s FieldStatus) String() string {
	switch s {
	case FieldStatusPending:
		return "pending"
	case FieldStatusCompleted:
		return "completed"
	case FieldStatusApproved:
		return "approved"
	case FieldStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ParseFieldStatus converts a carrier-reported field status
func ParseFieldStatus(s string) (FieldStatus, error) {
	switch s {
	case "pending", "pending-review", "pending_review":
		return FieldStatusPending, nil
	case "completed", "submitted":
		return FieldStatusCompleted, nil
	case "approved", "accepted":
		return FieldStatusApproved, nil
	case "rejected", "declined":
		return FieldStatusRejected, nil
	default:
		return FieldStatusPending, fmt.Errorf("unknown field status: %q", s)
	}
}

func (s FieldStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *FieldStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseFieldStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// NewGroup creates a local group mirroring a freshly created remote
// group. All remote-reported fields are seeded pending.
func NewGroup(externalID string, orgID uuid.UUID, zone, provider string, fields []Requirement) (*Group, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external group ID cannot be empty")
	}
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("organization ID cannot be nil")
	}
	if zone == "" {
		return nil, fmt.Errorf("destination zone cannot be empty")
	}

	now := time.Now().UTC()
	g := &Group{
		ID:              uuid.New(),
		ExternalGroupID: externalID,
		OrganizationID:  orgID,
		DestinationZone: zone,
		Provider:        provider,
		Status:          GroupStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, f := range fields {
		g.Requirements = append(g.Requirements, Requirement{
			FieldName: f.FieldName,
			FieldType: f.FieldType,
			Mandatory: f.Mandatory,
			Status:    FieldStatusPending,
		})
	}
	return g, nil
}

// Find returns the requirement entry for a field name, or nil.
func (g *Group) Find(fieldName string) *Requirement {
	for i := range g.Requirements {
		if g.Requirements[i].FieldName == fieldName {
			return &g.Requirements[i]
		}
	}
	return nil
}

// RecordSubmission marks a field completed after its value was pushed to
// the carrier. Field names the carrier introduced after group creation
// are appended rather than rejected.
func (g *Group) RecordSubmission(fieldName, value string) {
	r := g.Find(fieldName)
	if r == nil {
		g.Requirements = append(g.Requirements, Requirement{
			FieldName: fieldName,
			FieldType: FieldTypeText,
			Mandatory: true,
			Value:     value,
			Status:    FieldStatusCompleted,
		})
	} else {
		r.Value = value
		r.Status = FieldStatusCompleted
		r.RejectionReason = ""
	}
	g.recompute()
	g.UpdatedAt = time.Now().UTC()
}

// ApplyFieldStatus applies a carrier-reported review outcome for one
// field. Updates are last-writer-wins per field, except that a stale
// report may not move an already reviewed field backward; an explicit
// rejection always applies. Returns true when anything changed.
func (g *Group) ApplyFieldStatus(fieldName string, status FieldStatus, reason string) bool {
	r := g.Find(fieldName)
	if r == nil {
		g.Requirements = append(g.Requirements, Requirement{
			FieldName:       fieldName,
			FieldType:       FieldTypeText,
			Mandatory:       true,
			Status:          status,
			RejectionReason: reason,
		})
		g.recompute()
		g.UpdatedAt = time.Now().UTC()
		return true
	}

	if status != FieldStatusRejected && status <= r.Status {
		// Stale or duplicate delivery; reprocessing is a no-op.
		return false
	}

	r.Status = status
	if status == FieldStatusRejected {
		r.RejectionReason = reason
	} else {
		r.RejectionReason = ""
	}
	g.recompute()
	g.UpdatedAt = time.Now().UTC()
	return true
}

// IsApproved reports whether the group gates nothing: every mandatory
// field has passed review.
func (g *Group) IsApproved() bool {
	return g.Status == GroupStatusActive
}

// HasRejections reports whether any field needs resubmission.
func (g *Group) HasRejections() bool {
	for i := range g.Requirements {
		if g.Requirements[i].Status == FieldStatusRejected {
			return true
		}
	}
	return false
}

// recompute derives the overall status from field statuses. The overall
// status is monotonic under replay: once active, only an explicit field
// rejection can move it off active (handled by ApplyFieldStatus letting
// rejections through). A rejection on an incomplete group stays a
// field-level condition: the group keeps gating as pending and the
// rejected fields are exposed through HasRejections.
func (g *Group) recompute() {
	allSettled := len(g.Requirements) > 0
	rejected := false
	for i := range g.Requirements {
		r := &g.Requirements[i]
		if !r.Mandatory {
			continue
		}
		switch r.Status {
		case FieldStatusApproved, FieldStatusCompleted:
			// satisfied
		case FieldStatusRejected:
			rejected = true
			allSettled = false
		default:
			allSettled = false
		}
	}

	if allSettled {
		g.Status = GroupStatusActive
		return
	}
	if g.Status == GroupStatusActive && !rejected {
		// Never regress to pending off the back of a stale event.
		return
	}
	g.Status = GroupStatusPending
}
