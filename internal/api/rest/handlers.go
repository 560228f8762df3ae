package rest

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/number"
	"github.com/davidleathers/number-provisioning-backend/internal/domain/values"
	"github.com/davidleathers/number-provisioning-backend/internal/infrastructure/carrier"
	"github.com/davidleathers/number-provisioning-backend/internal/service/compliance"
	"github.com/davidleathers/number-provisioning-backend/internal/service/provisioning"
	"github.com/davidleathers/number-provisioning-backend/internal/service/reconciler"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services holds the use-case services the REST API fronts.
type Services struct {
	Provisioning provisioning.Service
	Compliance   compliance.Service
	Webhooks     reconciler.Service
}

// Handler routes HTTP requests to the services.
type Handler struct {
	services Services
	health   *HealthChecker
	logger   *slog.Logger
}

// NewHandler creates a new REST API handler
func NewHandler(services Services, health *HealthChecker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{services: services, health: health, logger: logger}
}

// Routes builds the full route table.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/numbers/search", h.handleSearch)
	mux.HandleFunc("POST /api/v1/numbers", h.handlePurchase)
	mux.HandleFunc("GET /api/v1/subscription-units/{id}/number", h.handleUnitNumber)
	mux.HandleFunc("POST /api/v1/requirement-groups", h.handleCreateGroup)
	mux.HandleFunc("GET /api/v1/requirement-groups/{id}", h.handleGetGroup)
	mux.HandleFunc("POST /api/v1/requirement-groups/{id}/requirements", h.handleSubmitRequirements)
	mux.HandleFunc("POST /webhooks/carrier", h.handleCarrierWebhook)

	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := provisioning.SearchQuery{Zone: r.URL.Query().Get("zone")}

	if p := r.URL.Query().Get("provider"); p != "" {
		provider, err := number.ParseProvider(p)
		if err != nil {
			writeBadRequest(w, "UNKNOWN_PROVIDER", err.Error())
			return
		}
		query.Provider = &provider
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 {
			writeBadRequest(w, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		query.Limit = limit
	}

	result, err := h.services.Provisioning.Search(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	phone, err := values.NewPhoneNumberE164(req.PhoneNumber)
	if err != nil {
		writeBadRequest(w, "INVALID_PHONE_NUMBER", err.Error())
		return
	}
	provider, err := number.ParseProvider(req.Provider)
	if err != nil {
		writeBadRequest(w, "UNKNOWN_PROVIDER", err.Error())
		return
	}

	input := provisioning.PurchaseInput{
		Phone:              phone,
		Provider:           provider,
		Zone:               req.Zone,
		OrganizationID:     uuid.MustParse(req.OrganizationID),
		SubscriptionUnitID: uuid.MustParse(req.SubscriptionUnitID),
	}
	if req.RequirementGroupID != "" {
		groupID := uuid.MustParse(req.RequirementGroupID)
		input.RequirementGroupID = &groupID
	}
	if req.Capabilities != nil {
		input.Capabilities = carrier.Capabilities{
			Voice: req.Capabilities.Voice,
			SMS:   req.Capabilities.SMS,
			MMS:   req.Capabilities.MMS,
		}
	}

	projection, err := h.services.Provisioning.Purchase(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, projection)
}

func (h *Handler) handleUnitNumber(w http.ResponseWriter, r *http.Request) {
	unitID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeBadRequest(w, "INVALID_ID", "subscription unit id must be a UUID")
		return
	}

	projection, err := h.services.Provisioning.HasLiveNumber(r.Context(), unitID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if projection == nil {
		writeError(w, r, errors.ErrNumberNotFound)
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

func (h *Handler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	provider, err := number.ParseProvider(req.Provider)
	if err != nil {
		writeBadRequest(w, "UNKNOWN_PROVIDER", err.Error())
		return
	}

	group, err := h.services.Compliance.GetOrCreate(r.Context(), provider, uuid.MustParse(req.OrganizationID), req.DestinationZone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

func (h *Handler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeBadRequest(w, "INVALID_ID", "requirement group id must be a UUID")
		return
	}

	group, err := h.services.Compliance.GetGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

func (h *Handler) handleSubmitRequirements(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeBadRequest(w, "INVALID_ID", "requirement group id must be a UUID")
		return
	}
	var req SubmitRequirementsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	group, err := h.services.Compliance.SubmitRequirements(r.Context(), groupID, req.Values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(group))
}
