// Package services holds the shortening and resolution flows and the
// dashboard queries. Storage, cache and analytics are injected.
package services

import (
	"context"
	"time"

	"scaler-service/models"
)

const DefaultCacheTTL = time.Hour

// LinkStore is the durable record store as seen by the services.
// *db.SQLStore satisfies it.
type LinkStore interface {
	CreatePending(ctx context.Context, originalURL string) (int64, error)
	AttachCode(ctx context.Context, id int64, shortCode string) error
	DeletePending(ctx context.Context, id int64) error
	FindByCode(ctx context.Context, shortCode string) (*models.ShortLink, error)
}

// DashboardStore is the read side used by the dashboard
type DashboardStore interface {
	ListRecent(ctx context.Context, limit int) ([]*models.ShortLink, error)
	AggregateByCountry(ctx context.Context) ([]models.CountryCount, error)
}

// LinkCache never fails; a broken cache is a miss. *cache.Cache satisfies it.
type LinkCache interface {
	Get(ctx context.Context, code string) (string, bool)
	Set(ctx context.Context, code, url string, ttl time.Duration)
}

// AnalyticsScheduler defers click recording. Schedule must not block.
type AnalyticsScheduler interface {
	Schedule(code, country string)
}
