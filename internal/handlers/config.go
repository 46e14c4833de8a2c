package handlers

import (
	"net/http"

	"github.com/waveroom/backend/internal/config"
)

type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// PublicConfig returns non-sensitive configuration for the frontend
func (h *ConfigHandler) PublicConfig(w http.ResponseWriter, r *http.Request) {
	// Only expose public, non-sensitive configuration
	response := map[string]interface{}{
		"spotifyClientId": h.cfg.SpotifyClientID,
		"searchEnabled":   h.cfg.SpotifyClientID != "",
	}

	writeJSON(w, http.StatusOK, response)
}

// Health reports process liveness.
func (h *ConfigHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
