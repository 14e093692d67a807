package httpapi

import (
	"net/http"
	"time"

	"amanat.org/internal/audit"
	"amanat.org/internal/escrow"
)

type tokenRequest struct {
	Identity string `json:"identity"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleAuthToken issues development tokens for any valid identity.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !a.devTokens || a.auth == nil {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !escrow.Identity(req.Identity).Valid() {
		writeError(w, r, http.StatusBadRequest, "identity is required")
		return
	}

	token, expiresAt, err := a.auth.GenerateToken(req.Identity, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	fields := map[string]any{
		"identity":   req.Identity,
		"expires_at": expiresAt.Format(time.RFC3339),
	}
	_ = audit.LogEvent(r.Context(), "auth.token.issued", fields)

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
