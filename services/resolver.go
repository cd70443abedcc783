package services

import (
	"context"
	"log/slog"
	"time"

	"scaler-service/models"
)

type Resolver struct {
	store     LinkStore
	cache     LinkCache
	analytics AnalyticsScheduler
	cacheTTL  time.Duration
	logger    *slog.Logger
}

func NewResolver(store LinkStore, cache LinkCache, analytics AnalyticsScheduler, cacheTTL time.Duration, logger *slog.Logger) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Resolver{store: store, cache: cache, analytics: analytics, cacheTTL: cacheTTL, logger: logger}
}

// Resolve returns the original URL for code and schedules a click from
// country. An unknown code returns *models.NotFoundError and records nothing.
func (r *Resolver) Resolve(ctx context.Context, code, country string) (string, error) {
	url, found := r.cache.Get(ctx, code)
	if !found {
		link, err := r.store.FindByCode(ctx, code)
		if err != nil {
			return "", err
		}
		url = link.OriginalURL
		r.cache.Set(ctx, code, url, r.cacheTTL)
	}

	if country == "" {
		country = models.UnknownCountry
	}
	r.analytics.Schedule(code, country)

	r.logger.DebugContext(ctx, "short code resolved", "short_code", code, "country", country, "cache_hit", found)
	return url, nil
}
