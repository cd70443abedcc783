package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"scaler-service/models"
	"scaler-service/utils"
)

// DefaultCodeOffset keeps the first codes at three symbols
const DefaultCodeOffset = 10000

type ShortenerOptions struct {
	CodeOffset uint64
	CacheTTL   time.Duration
}

type Shortener struct {
	store  LinkStore
	cache  LinkCache
	opts   ShortenerOptions
	logger *slog.Logger
}

func NewShortener(store LinkStore, cache LinkCache, opts ShortenerOptions, logger *slog.Logger) *Shortener {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return &Shortener{store: store, cache: cache, opts: opts, logger: logger}
}

// Shorten persists originalURL and returns the link with its code attached.
// The code is the base62 form of the store id plus the configured offset.
// originalURL is stored exactly as given.
func (s *Shortener) Shorten(ctx context.Context, originalURL string) (*models.ShortLink, error) {
	if strings.TrimSpace(originalURL) == "" {
		return nil, &models.ValidationError{Message: "url is required"}
	}

	id, err := s.store.CreatePending(ctx, originalURL)
	if err != nil {
		return nil, err
	}

	code := utils.Encode(uint64(id) + s.opts.CodeOffset)

	if err := s.store.AttachCode(ctx, id, code); err != nil {
		s.logger.ErrorContext(ctx, "failed to attach short code", "id", id, "short_code", code, "error", err)
		s.discardPending(ctx, id)
		return nil, err
	}

	s.cache.Set(ctx, code, originalURL, s.opts.CacheTTL)

	s.logger.InfoContext(ctx, "short link created", "id", id, "short_code", code)

	return &models.ShortLink{
		ID:          id,
		OriginalURL: originalURL,
		ShortCode:   code,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// discardPending removes the orphaned row left by a failed attach
func (s *Shortener) discardPending(ctx context.Context, id int64) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.store.DeletePending(dctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to delete pending link", "id", id, "error", err)
	}
}
