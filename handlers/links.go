package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"scaler-service/models"
	"scaler-service/utils"
)

type LinkShortener interface {
	Shorten(ctx context.Context, originalURL string) (*models.ShortLink, error)
}

type LinkFinder interface {
	FindByCode(ctx context.Context, shortCode string) (*models.ShortLink, error)
}

type DashboardReader interface {
	ListRecent(ctx context.Context, limit int) ([]*models.ShortLink, error)
	CountryBreakdown(ctx context.Context) ([]models.CountryCount, error)
}

type CreateLinkRequest struct {
	URL string `json:"url"`
}

type CreateLinkResponse struct {
	ShortCode string `json:"short_code"`
	Original  string `json:"original"`
	ShortURL  string `json:"short_url"`
}

type LinkResponse struct {
	ID          int64     `json:"id"`
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	ShortURL    string    `json:"short_url"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"created_at"`
}

func newLinkResponse(link *models.ShortLink, baseURL string) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		ShortURL:    baseURL + "/" + link.ShortCode,
		Clicks:      link.Clicks,
		CreatedAt:   link.CreatedAt,
	}
}

// CreateLink handles POST /shorten and POST /api/links
func CreateLink(shortener LinkShortener, baseURL string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		// Only bad input is the caller's fault; anything else is ours
		link, err := shortener.Shorten(r.Context(), req.URL)
		var validation *models.ValidationError
		if errors.As(err, &validation) {
			writeError(w, http.StatusBadRequest, validation.Message)
			return
		}
		if err != nil {
			writeInternalError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateLinkResponse{
			ShortCode: link.ShortCode,
			Original:  link.OriginalURL,
			ShortURL:  baseURL + "/" + link.ShortCode,
		})
	}
}

// GetLink handles GET /api/links/{code}
func GetLink(links LinkFinder, baseURL string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if !utils.IsValidCode(code) {
			writeError(w, http.StatusNotFound, "Link not found")
			return
		}

		link, err := links.FindByCode(r.Context(), code)
		if err != nil {
			writeServiceError(w, r, logger, err, "Link not found")
			return
		}

		writeJSON(w, http.StatusOK, newLinkResponse(link, baseURL))
	}
}

// ListLinks handles GET /api/urls?limit=n
func ListLinks(dashboard DashboardReader, baseURL string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		links, err := dashboard.ListRecent(r.Context(), limit)
		if err != nil {
			writeServiceError(w, r, logger, err, "Link not found")
			return
		}

		resp := make([]LinkResponse, 0, len(links))
		for _, link := range links {
			resp = append(resp, newLinkResponse(link, baseURL))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
