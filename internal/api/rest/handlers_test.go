package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/requirement"
	"github.com/davidleathers/number-provisioning-backend/internal/service/provisioning"
	"github.com/davidleathers/number-provisioning-backend/internal/service/reconciler"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestHandler(prov *MockProvisioningService, comp *MockComplianceService, hooks *MockWebhookService) http.Handler {
	h := NewHandler(Services{Provisioning: prov, Compliance: comp, Webhooks: hooks}, nil, nil)
	return h.Routes()
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleSearch(t *testing.T) {
	t.Run("returns candidates", func(t *testing.T) {
		prov := new(MockProvisioningService)
		prov.On("Search", mock.Anything, provisioning.SearchQuery{Zone: "US"}).
			Return(&provisioning.SearchResult{Provider: "telnyx"}, nil)

		rec := doRequest(t, newTestHandler(prov, nil, nil), http.MethodGet, "/api/v1/numbers/search?zone=US", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp SearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "telnyx", resp.Provider)
	})

	t.Run("degraded search still answers 200", func(t *testing.T) {
		prov := new(MockProvisioningService)
		prov.On("Search", mock.Anything, mock.Anything).
			Return(&provisioning.SearchResult{Provider: "twilio", Diagnostic: "carrier credentials rejected for twilio; try the alternate provider"}, nil)

		rec := doRequest(t, newTestHandler(prov, nil, nil), http.MethodGet, "/api/v1/numbers/search?zone=US&provider=twilio", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "diagnostic")
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		rec := doRequest(t, newTestHandler(new(MockProvisioningService), nil, nil), http.MethodGet, "/api/v1/numbers/search?zone=US&provider=vonage", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNKNOWN_PROVIDER")
	})

	t.Run("missing zone is a domain validation error", func(t *testing.T) {
		prov := new(MockProvisioningService)
		prov.On("Search", mock.Anything, mock.Anything).
			Return(nil, errors.NewValidationError("MISSING_ZONE", "destination zone is required"))

		rec := doRequest(t, newTestHandler(prov, nil, nil), http.MethodGet, "/api/v1/numbers/search", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MISSING_ZONE")
	})
}

func TestHandlePurchase(t *testing.T) {
	validBody := func() map[string]interface{} {
		return map[string]interface{}{
			"phone_number":         "+15551234567",
			"provider":             "telnyx",
			"zone":                 "US",
			"organization_id":      uuid.New().String(),
			"subscription_unit_id": uuid.New().String(),
		}
	}

	t.Run("creates the number", func(t *testing.T) {
		prov := new(MockProvisioningService)
		prov.On("Purchase", mock.Anything, mock.MatchedBy(func(in provisioning.PurchaseInput) bool {
			return in.Phone.E164() == "+15551234567" && in.Zone == "US"
		})).Return(&provisioning.NumberProjection{PhoneNumber: "+15551234567", Status: "pending"}, nil)

		rec := doRequest(t, newTestHandler(prov, nil, nil), http.MethodPost, "/api/v1/numbers", validBody())
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"pending"`)
	})

	t.Run("validation failure names the fields", func(t *testing.T) {
		body := validBody()
		delete(body, "phone_number")
		body["provider"] = "vonage"

		rec := doRequest(t, newTestHandler(new(MockProvisioningService), nil, nil), http.MethodPost, "/api/v1/numbers", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
		assert.Contains(t, rec.Body.String(), "PhoneNumber")
	})

	t.Run("live-number conflict maps to 409", func(t *testing.T) {
		prov := new(MockProvisioningService)
		prov.On("Purchase", mock.Anything, mock.Anything).Return(nil, errors.ErrUnitHasLiveNumber)

		rec := doRequest(t, newTestHandler(prov, nil, nil), http.MethodPost, "/api/v1/numbers", validBody())
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unavailable number maps to 503", func(t *testing.T) {
		prov := new(MockProvisioningService)
		prov.On("Purchase", mock.Anything, mock.Anything).Return(nil, errors.ErrNumberTaken)

		rec := doRequest(t, newTestHandler(prov, nil, nil), http.MethodPost, "/api/v1/numbers", validBody())
		assert.Equal(t, errors.ErrNumberTaken.StatusCode, rec.Code)
		assert.Contains(t, rec.Body.String(), "NUMBER_UNAVAILABLE")
	})
}

func TestHandleUnitNumber(t *testing.T) {
	unitID := uuid.New()

	t.Run("returns the live number", func(t *testing.T) {
		prov := new(MockProvisioningService)
		prov.On("HasLiveNumber", mock.Anything, unitID).
			Return(&provisioning.NumberProjection{PhoneNumber: "+15551234567", Status: "active"}, nil)

		rec := doRequest(t, newTestHandler(prov, nil, nil), http.MethodGet, "/api/v1/subscription-units/"+unitID.String()+"/number", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "+15551234567")
	})

	t.Run("404 when the unit has no live number", func(t *testing.T) {
		prov := new(MockProvisioningService)
		prov.On("HasLiveNumber", mock.Anything, unitID).Return(nil, nil)

		rec := doRequest(t, newTestHandler(prov, nil, nil), http.MethodGet, "/api/v1/subscription-units/"+unitID.String()+"/number", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("400 on a malformed id", func(t *testing.T) {
		rec := doRequest(t, newTestHandler(new(MockProvisioningService), nil, nil), http.MethodGet, "/api/v1/subscription-units/not-a-uuid/number", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleRequirementGroups(t *testing.T) {
	orgID := uuid.New()
	group, err := requirement.NewGroup("rg_ext", orgID, "DE", "telnyx", []requirement.Requirement{
		{FieldName: "address", FieldType: requirement.FieldTypeText, Mandatory: true},
	})
	require.NoError(t, err)

	t.Run("create returns the group without submitted values", func(t *testing.T) {
		comp := new(MockComplianceService)
		comp.On("GetOrCreate", mock.Anything, mock.Anything, orgID, "DE").Return(group, nil)

		body := map[string]string{"provider": "telnyx", "organization_id": orgID.String(), "destination_zone": "DE"}
		rec := doRequest(t, newTestHandler(nil, comp, nil), http.MethodPost, "/api/v1/requirement-groups", body)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp GroupResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, group.ID, resp.ID)
		assert.Equal(t, "pending", resp.Status.String())
		require.Len(t, resp.Requirements, 1)
		assert.NotContains(t, rec.Body.String(), `"value"`)
	})

	t.Run("get by id", func(t *testing.T) {
		comp := new(MockComplianceService)
		comp.On("GetGroup", mock.Anything, group.ID).Return(group, nil)

		rec := doRequest(t, newTestHandler(nil, comp, nil), http.MethodGet, "/api/v1/requirement-groups/"+group.ID.String(), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("get unknown group is 404", func(t *testing.T) {
		comp := new(MockComplianceService)
		comp.On("GetGroup", mock.Anything, mock.Anything).Return(nil, errors.ErrGroupNotFound)

		rec := doRequest(t, newTestHandler(nil, comp, nil), http.MethodGet, "/api/v1/requirement-groups/"+uuid.New().String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("submit requirements", func(t *testing.T) {
		comp := new(MockComplianceService)
		comp.On("SubmitRequirements", mock.Anything, group.ID, map[string]string{"address": "Unter den Linden 1"}).
			Return(group, nil)

		body := map[string]interface{}{"values": map[string]string{"address": "Unter den Linden 1"}}
		rec := doRequest(t, newTestHandler(nil, comp, nil), http.MethodPost, "/api/v1/requirement-groups/"+group.ID.String()+"/requirements", body)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("submit with empty values is rejected", func(t *testing.T) {
		body := map[string]interface{}{"values": map[string]string{}}
		rec := doRequest(t, newTestHandler(nil, new(MockComplianceService), nil), http.MethodPost, "/api/v1/requirement-groups/"+group.ID.String()+"/requirements", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleCarrierWebhook(t *testing.T) {
	t.Run("acknowledges applied events", func(t *testing.T) {
		hooks := new(MockWebhookService)
		hooks.On("Handle", mock.Anything, []byte(`{"type":"number_order.complete"}`), "sig", "ts").
			Return(&reconciler.Result{EventType: "number_order.complete", Outcome: reconciler.OutcomeApplied}, nil)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/carrier", bytes.NewBufferString(`{"type":"number_order.complete"}`))
		req.Header.Set(headerWebhookSignature, "sig")
		req.Header.Set(headerWebhookTimestamp, "ts")
		rec := httptest.NewRecorder()
		newTestHandler(nil, nil, hooks).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"applied"`)
	})

	t.Run("signature failure is not acknowledged", func(t *testing.T) {
		hooks := new(MockWebhookService)
		hooks.On("Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.NewIntegrityError("webhook signature mismatch"))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/carrier", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		newTestHandler(nil, nil, hooks).ServeHTTP(rec, req)

		assert.Equal(t, errors.NewIntegrityError("x").StatusCode, rec.Code)
		assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
		assert.Less(t, rec.Code, http.StatusInternalServerError)
	})

	t.Run("internal failures return 5xx so the carrier redelivers", func(t *testing.T) {
		hooks := new(MockWebhookService)
		hooks.On("Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.NewInternalError("database down"))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/carrier", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		newTestHandler(nil, nil, hooks).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("healthz is always ok", func(t *testing.T) {
		rec := doRequest(t, newTestHandler(nil, nil, nil), http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz reflects dependency health", func(t *testing.T) {
		h := NewHandler(Services{}, NewHealthChecker(map[string]Pinger{
			"postgres": pingerFunc(func(ctx context.Context) error { return nil }),
			"redis":    pingerFunc(func(ctx context.Context) error { return fmt.Errorf("connection refused") }),
		}), nil)

		rec := doRequest(t, h.Routes(), http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
