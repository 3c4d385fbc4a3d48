package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"gatepass/internal/services"
)

type CredentialHandler struct {
	app         *pocketbase.PocketBase
	credentials *services.CredentialService
}

func NewCredentialHandler(app *pocketbase.PocketBase, credentials *services.CredentialService) *CredentialHandler {
	return &CredentialHandler{
		app:         app,
		credentials: credentials,
	}
}

// IssueCredential - Issue a signed QR credential for a purchased ticket.
// The token goes back to the client, which renders it as a QR image.
func (h *CredentialHandler) IssueCredential(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticketID := e.Request.PathValue("ticketId")
	ctx := e.Request.Context()

	ticket, err := h.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return apis.NewNotFoundError("Ticket not found", err)
	}

	if ticket.GetString("user") != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}
	if ticket.GetString("status") != "sold" {
		return apis.NewBadRequestError("Ticket is not paid", nil)
	}

	// Optional per-request TTL, capped by the handler; the service default
	// applies otherwise.
	var ttl time.Duration
	if raw := e.Request.URL.Query().Get("ttl"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 || parsed > 7*24*time.Hour {
			return apis.NewBadRequestError("Invalid ttl", err)
		}
		ttl = parsed
	}

	cred, err := h.credentials.Issue(ctx, ticketID, e.Auth.Id, ticket.GetString("event_id"), ttl)
	if err != nil {
		return apis.NewApiError(http.StatusServiceUnavailable, "Credential issuance unavailable", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"token":      cred.Token,
		"ticket_id":  cred.TicketID,
		"event_id":   cred.EventID,
		"issued_at":  cred.IssuedAt,
		"expires_at": cred.ExpiresAt,
	})
}
