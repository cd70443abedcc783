package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"scaler-service/db/migrations"
)

const pqUniqueViolation = "23505"

var postgresDialect = dialect{
	name:   "postgres",
	rebind: rebindDollar,
	isUniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
	},
}

// NewPostgresDB connects to Postgres and applies pending migrations
func NewPostgresDB(ctx context.Context, databaseURL string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Cache hits never reach the database; size for cache-miss bursts
	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := migrations.New(databaseURL, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{db: db, dialect: postgresDialect}, nil
}

// rebindDollar turns ? placeholders into $1, $2, ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
