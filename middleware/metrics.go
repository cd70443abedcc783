package middleware

import (
	"net/http"
	"sync/atomic"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestCounter counts served requests and 5xx responses, probes excluded
type RequestCounter struct {
	total  atomic.Int64
	errors atomic.Int64
}

type RequestStats struct {
	Total            int64   `json:"total"`
	Errors           int64   `json:"errors"`
	ErrorRatePercent float64 `json:"error_rate_percent"`
}

func (c *RequestCounter) Count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		wrapped := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		c.total.Add(1)
		if wrapped.Status() >= 500 {
			c.errors.Add(1)
		}
	})
}

func (c *RequestCounter) Stats() RequestStats {
	total, errs := c.total.Load(), c.errors.Load()
	stats := RequestStats{Total: total, Errors: errs}
	if total > 0 {
		stats.ErrorRatePercent = float64(errs) / float64(total) * 100
	}
	return stats
}
