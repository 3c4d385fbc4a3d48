package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"gatepass/internal/services"
	"gatepass/internal/status"
	"gatepass/models"
)

type EscrowHandler struct {
	app    *pocketbase.PocketBase
	escrow *services.EscrowService
}

func NewEscrowHandler(app *pocketbase.PocketBase, escrow *services.EscrowService) *EscrowHandler {
	return &EscrowHandler{
		app:    app,
		escrow: escrow,
	}
}

// GetAgreement - Agreement state for the dashboard.
func (h *EscrowHandler) GetAgreement(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	agreementID := e.Request.PathValue("agreementId")

	agreement, err := h.escrow.Agreement(e.Request.Context(), agreementID)
	if err != nil {
		if errors.Is(err, status.ErrAgreementNotFound) {
			return apis.NewNotFoundError("Agreement not found", nil)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load agreement", err)
	}

	return e.JSON(http.StatusOK, agreement)
}

// SubmitSecret - One party's secret submission. Safe to retry: duplicate
// submissions are no-ops and a failed release leaves the agreement
// retryable.
func (h *EscrowHandler) SubmitSecret(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	agreementID := e.Request.PathValue("agreementId")

	var req struct {
		Party  string `json:"party"`
		Secret string `json:"secret"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	party, ok := models.ParseParty(req.Party)
	if !ok {
		return apis.NewBadRequestError("Unknown party", nil)
	}
	if req.Secret == "" {
		return apis.NewBadRequestError("Missing secret", nil)
	}

	result, err := h.escrow.SubmitSecret(e.Request.Context(), agreementID, party, req.Secret)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Submission failed", err)
	}

	switch result.Status {
	case models.SubmissionIdentityMismatch:
		return e.JSON(http.StatusForbidden, result)
	case models.SubmissionRetryableFailure:
		return e.JSON(http.StatusBadGateway, result)
	default:
		return e.JSON(http.StatusOK, result)
	}
}
