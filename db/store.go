package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"scaler-service/models"
)

// dialect captures what differs between the SQL engines we run on
type dialect struct {
	name              string
	rebind            func(query string) string
	isUniqueViolation func(err error) bool
}

// SQLStore is the durable record store for links and click analytics
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the store named by databaseURL. postgres:// and
// postgresql:// URLs use Postgres; everything else is SQLite or libSQL.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*SQLStore, error) {
	if isPostgresURL(databaseURL) {
		return NewPostgresDB(ctx, databaseURL, logger)
	}
	return NewSQLiteDB(ctx, databaseURL, logger)
}

func isPostgresURL(u string) bool {
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

// Dialect returns the engine name ("postgres" or "sqlite")
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreatePending inserts a link without a short code and returns its id
func (s *SQLStore) CreatePending(ctx context.Context, originalURL string) (int64, error) {
	query := s.dialect.rebind(`INSERT INTO urls (original_url, clicks) VALUES (?, 0) RETURNING id`)

	var id int64
	if err := s.db.QueryRowContext(ctx, query, originalURL).Scan(&id); err != nil {
		return 0, &models.StorageError{Op: "create pending link", Err: err}
	}
	return id, nil
}

// AttachCode sets the short code of a pending link. A code is assigned once:
// re-attaching the same code is a no-op, a different one is a conflict.
func (s *SQLStore) AttachCode(ctx context.Context, id int64, shortCode string) error {
	query := s.dialect.rebind(`UPDATE urls SET short_code = ? WHERE id = ? AND short_code IS NULL`)

	res, err := s.db.ExecContext(ctx, query, shortCode, id)
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return &models.ConflictError{
				Message: fmt.Sprintf("short code %q already assigned", shortCode),
				Err:     err,
			}
		}
		return &models.StorageError{Op: "attach code", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &models.StorageError{Op: "attach code", Err: err}
	}
	if n > 0 {
		return nil
	}

	var current sql.NullString
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT short_code FROM urls WHERE id = ?`), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.NotFoundError{Message: fmt.Sprintf("link %d not found", id)}
	}
	if err != nil {
		return &models.StorageError{Op: "attach code", Err: err}
	}
	if current.String == shortCode {
		return nil
	}
	return &models.ConflictError{Message: fmt.Sprintf("link %d already has code %q", id, current.String)}
}

// DeletePending removes a link that never received a code
func (s *SQLStore) DeletePending(ctx context.Context, id int64) error {
	query := s.dialect.rebind(`DELETE FROM urls WHERE id = ? AND short_code IS NULL`)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return &models.StorageError{Op: "delete pending link", Err: err}
	}
	return nil
}

func (s *SQLStore) FindByCode(ctx context.Context, shortCode string) (*models.ShortLink, error) {
	query := s.dialect.rebind(`SELECT id, original_url, short_code, clicks, created_at
	          FROM urls WHERE short_code = ?`)

	link, err := scanLink(s.db.QueryRowContext(ctx, query, shortCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Message: "link not found"}
	}
	if err != nil {
		return nil, &models.StorageError{Op: "find link", Err: err}
	}
	return link, nil
}

// ListRecent returns the newest links that have a code, newest first
func (s *SQLStore) ListRecent(ctx context.Context, limit int) ([]*models.ShortLink, error) {
	query := s.dialect.rebind(`SELECT id, original_url, short_code, clicks, created_at
	          FROM urls WHERE short_code IS NOT NULL ORDER BY id DESC LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, &models.StorageError{Op: "list links", Err: err}
	}
	defer rows.Close()

	links := make([]*models.ShortLink, 0, limit)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, &models.StorageError{Op: "scan link", Err: err}
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "list links", Err: err}
	}
	return links, nil
}

// IncrementClicks atomically adds one click. It reports false when no link
// has the code; that is not an error.
func (s *SQLStore) IncrementClicks(ctx context.Context, shortCode string) (bool, error) {
	return s.IncrementClicksBy(ctx, shortCode, 1)
}

func (s *SQLStore) IncrementClicksBy(ctx context.Context, shortCode string, n int64) (bool, error) {
	found, err := s.incrementClicks(ctx, s.db, shortCode, n)
	if err != nil {
		return false, &models.StorageError{Op: "increment clicks", Err: err}
	}
	return found, nil
}

func (s *SQLStore) AppendAnalyticsEvent(ctx context.Context, shortCode, country string) error {
	query := s.dialect.rebind(`INSERT INTO analytics (short_code, country) VALUES (?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, shortCode, country); err != nil {
		return &models.StorageError{Op: "append analytics event", Err: err}
	}
	return nil
}

// RecordClicks appends every event and bumps each link's counter in one
// transaction. Codes without a link are returned in missing.
func (s *SQLStore) RecordClicks(ctx context.Context, events []models.ClickEvent) ([]string, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &models.StorageError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`INSERT INTO analytics (short_code, country) VALUES (?, ?)`))
	if err != nil {
		return nil, &models.StorageError{Op: "prepare statement", Err: err}
	}
	defer stmt.Close()

	counts := make(map[string]int64)
	for _, event := range events {
		if _, err := stmt.ExecContext(ctx, event.ShortCode, event.Country); err != nil {
			return nil, &models.StorageError{Op: "insert analytics event", Err: err}
		}
		counts[event.ShortCode]++
	}

	// Fixed update order keeps concurrent batches from deadlocking on row locks
	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var missing []string
	for _, code := range codes {
		found, err := s.incrementClicks(ctx, tx, code, counts[code])
		if err != nil {
			return nil, &models.StorageError{Op: "increment clicks", Err: err}
		}
		if !found {
			missing = append(missing, code)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &models.StorageError{Op: "commit transaction", Err: err}
	}
	return missing, nil
}

// AggregateByCountry counts analytics events per country, largest first.
// It scans the whole log on every call.
func (s *SQLStore) AggregateByCountry(ctx context.Context) ([]models.CountryCount, error) {
	query := `SELECT country, COUNT(*) AS clicks
	          FROM analytics
	          GROUP BY country
	          ORDER BY clicks DESC, country ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &models.StorageError{Op: "aggregate by country", Err: err}
	}
	defer rows.Close()

	counts := []models.CountryCount{}
	for rows.Next() {
		var c models.CountryCount
		if err := rows.Scan(&c.Name, &c.Clicks); err != nil {
			return nil, &models.StorageError{Op: "scan country count", Err: err}
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "aggregate by country", Err: err}
	}
	return counts, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// incrementClicks is a single UPDATE so concurrent callers never lose counts
func (s *SQLStore) incrementClicks(ctx context.Context, ex execer, shortCode string, n int64) (bool, error) {
	query := s.dialect.rebind(`UPDATE urls SET clicks = clicks + ? WHERE short_code = ?`)

	res, err := ex.ExecContext(ctx, query, n, shortCode)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*models.ShortLink, error) {
	var (
		link      models.ShortLink
		shortCode sql.NullString
		createdAt dbTime
	)
	if err := row.Scan(&link.ID, &link.OriginalURL, &shortCode, &link.Clicks, &createdAt); err != nil {
		return nil, err
	}
	link.ShortCode = shortCode.String
	link.CreatedAt = createdAt.Time
	return &link, nil
}

// dbTime accepts both native timestamps and the text forms SQLite drivers return
type dbTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func (t *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = x
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	default:
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}
