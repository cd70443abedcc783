package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scaler-service/utils"
)

const urlNotFound = "URL not found"

type LinkResolver interface {
	Resolve(ctx context.Context, code, country string) (string, error)
}

type redirectResponse struct {
	Status   string `json:"status"`
	Location string `json:"location"`
}

// HandleRedirect handles GET /{code}. Click recording happens behind the
// resolver and never delays the response.
func HandleRedirect(resolver LinkResolver, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if !utils.IsValidCode(code) {
			writeError(w, http.StatusNotFound, urlNotFound)
			return
		}

		originalURL, err := resolver.Resolve(r.Context(), code, utils.ExtractCountry(r))
		if err != nil {
			writeServiceError(w, r, logger, err, urlNotFound)
			return
		}

		w.Header().Set("Location", originalURL)
		writeJSON(w, http.StatusFound, redirectResponse{Status: "302 Found", Location: originalURL})
	}
}
