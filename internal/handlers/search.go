package handlers

import (
	"net/http"
	"strconv"

	"github.com/waveroom/backend/internal/models"
	"github.com/waveroom/backend/internal/provider"
)

// SearchHandler proxies track catalog searches so clients never hold
// provider credentials.
type SearchHandler struct {
	spotify *provider.SpotifyService
}

func NewSearchHandler(spotify *provider.SpotifyService) *SearchHandler {
	return &SearchHandler{spotify: spotify}
}

// Search handles GET /api/search?q=<query>&limit=<n>.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	tracks, err := h.spotify.Search(r.Context(), query, limit)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusBadGateway, "track search failed", err)
		return
	}

	writeJSON(w, http.StatusOK, models.SearchResponse{Tracks: tracks})
}
