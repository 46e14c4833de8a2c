package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/waveroom/backend/internal/config"
	"github.com/waveroom/backend/internal/crypto"
	"github.com/waveroom/backend/internal/logging"
	"github.com/waveroom/backend/internal/models"
)

// PortalHandler verifies operator portal credentials ahead of room
// creation, so the frontend can gate its creation form.
type PortalHandler struct {
	cfg *config.Config
}

func NewPortalHandler(cfg *config.Config) *PortalHandler {
	return &PortalHandler{cfg: cfg}
}

// Verify checks a day-salted portal password hash. Always returns 200 with
// a validity flag so the endpoint itself leaks nothing.
func (h *PortalHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyPortalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expected, err := crypto.HashPortalPassword(h.cfg.PortalPassword)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to hash portal password", err)
		return
	}

	valid := req.PasswordHash == expected
	if !valid {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventBadPortalPassword, "portal password verification failed")
	}

	writeJSON(w, http.StatusOK, models.VerifyPortalResponse{Valid: valid})
}
