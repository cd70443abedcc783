package services

import (
	"context"

	"scaler-service/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Dashboard struct {
	store DashboardStore
}

func NewDashboard(store DashboardStore) *Dashboard {
	return &Dashboard{store: store}
}

// ListRecent returns the newest links first. limit <= 0 means the default.
func (d *Dashboard) ListRecent(ctx context.Context, limit int) ([]*models.ShortLink, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	links, err := d.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = []*models.ShortLink{}
	}
	return links, nil
}

func (d *Dashboard) CountryBreakdown(ctx context.Context) ([]models.CountryCount, error) {
	counts, err := d.store.AggregateByCountry(ctx)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []models.CountryCount{}
	}
	return counts, nil
}
