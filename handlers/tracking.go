package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scaler-service/utils"
)

type ClickRecorder interface {
	Record(ctx context.Context, code, country string) error
}

// TrackClick handles POST /api/track/{code}, for clients that redirect on
// their own. The click is written before the response.
func TrackClick(links LinkFinder, clicks ClickRecorder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if !utils.IsValidCode(code) {
			writeError(w, http.StatusNotFound, "Link not found")
			return
		}

		if _, err := links.FindByCode(r.Context(), code); err != nil {
			writeServiceError(w, r, logger, err, "Link not found")
			return
		}

		if err := clicks.Record(r.Context(), code, utils.ExtractCountry(r)); err != nil {
			writeServiceError(w, r, logger, err, "Link not found")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "tracked"})
	}
}
