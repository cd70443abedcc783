package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"scaler-service/utils"
)

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// LinkQR handles GET /api/links/{code}/qr?size=n and returns a PNG of the
// short URL
func LinkQR(links LinkFinder, baseURL string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if !utils.IsValidCode(code) {
			writeError(w, http.StatusNotFound, "Link not found")
			return
		}

		size := defaultQRSize
		if raw := r.URL.Query().Get("size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "size must be an integer")
				return
			}
			size = min(max(n, minQRSize), maxQRSize)
		}

		if _, err := links.FindByCode(r.Context(), code); err != nil {
			writeServiceError(w, r, logger, err, "Link not found")
			return
		}

		png, err := qrcode.Encode(baseURL+"/"+code, qrcode.Medium, size)
		if err != nil {
			logger.ErrorContext(r.Context(), "could not generate qr", "short_code", code, "error", err)
			writeError(w, http.StatusInternalServerError, "could not generate qr")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	}
}
