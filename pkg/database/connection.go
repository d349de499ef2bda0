package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// Pool settings applied by Connect.
const (
	MaxOpenConns    = 25
	MaxIdleConns    = 25
	ConnMaxLifetime = 30 * time.Minute
)

// ValidateURL checks that url is a PostgreSQL connection string.
func ValidateURL(url string) error {
	if url == "" {
		return fmt.Errorf("database URL is not set")
	}
	if !strings.HasPrefix(url, "postgresql://") && !strings.HasPrefix(url, "postgres://") {
		return fmt.Errorf("database URL must be a PostgreSQL connection string starting with 'postgres://' or 'postgresql://'")
	}
	return nil
}

// Connect establishes a connection to the PostgreSQL database
func Connect(ctx context.Context, url string, logger *zap.Logger) (*sql.DB, error) {
	if err := ValidateURL(url); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(MaxOpenConns)
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetConnMaxLifetime(ConnMaxLifetime)

	if logger != nil {
		logger.Info("database connected", zap.String("url", redactURL(url)))
	}
	return db, nil
}

// redactURL hides everything before the host.
func redactURL(url string) string {
	if i := strings.LastIndex(url, "@"); i >= 0 {
		scheme := url[:strings.Index(url, "://")+3]
		return scheme + "[HIDDEN]" + url[i:]
	}
	return url
}

// Open connects and runs migrations.
func Open(ctx context.Context, url string, logger *zap.Logger) (*sql.DB, error) {
	db, err := Connect(ctx, url, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
