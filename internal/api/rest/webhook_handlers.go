package rest

import (
	"io"
	"net/http"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
)

// Carrier webhook headers. Both carriers are normalized onto these by
// the edge proxy.
const (
	headerWebhookSignature = "X-Carrier-Signature"
	headerWebhookTimestamp = "X-Carrier-Timestamp"
)

const maxWebhookBody = 1 << 20

// handleCarrierWebhook feeds a raw delivery to the reconciler. The body
// must reach the verifier byte for byte, so it is read whole and never
// decoded here. A non-2xx answer makes the carrier redeliver; anything
// the reconciler applied or deliberately ignored is acknowledged.
func (h *Handler) handleCarrierWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, errors.NewValidationError("BODY_TOO_LARGE", "webhook body exceeds the size limit").WithCause(err))
		return
	}

	result, err := h.services.Webhooks.Handle(r.Context(), rawBody,
		r.Header.Get(headerWebhookSignature), r.Header.Get(headerWebhookTimestamp))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
