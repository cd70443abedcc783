package models

import (
	"fmt"
	"time"
)

// UnknownCountry is recorded when a click's origin cannot be determined
const UnknownCountry = "Unknown"

// ShortLink represents a shortened URL
type ShortLink struct {
	ID          int64     `json:"id"`
	OriginalURL string    `json:"original_url"`
	ShortCode   string    `json:"short_code"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"created_at"`
}

// AnalyticsEvent is one row of the append-only click log.
// ShortCode is a reference by value; the link may no longer exist.
type AnalyticsEvent struct {
	ID        int64     `json:"id"`
	ShortCode string    `json:"short_code"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"created_at"`
}

// ClickEvent is a resolution waiting to be recorded
type ClickEvent struct {
	ShortCode string    `json:"short_code"`
	Country   string    `json:"country"`
	Timestamp time.Time `json:"timestamp"`
}

// CountryCount is one bucket of the per-country click breakdown
type CountryCount struct {
	Name   string `json:"name"`
	Clicks int64  `json:"clicks"`
}

// Error types
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// ConflictError reports a uniqueness violation on short_code. Codes derive
// from unique ids, so seeing one means the encoder or offset is broken.
type ConflictError struct {
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failure of the durable store
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CacheError wraps a failure of the shared cache. It never reaches clients.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache: %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}
