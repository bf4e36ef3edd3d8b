package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/tursodatabase/go-libsql"
)

// Client wraps a SQL database connection with Turso-specific retry logic.
type Client struct {
	*sql.DB
}

// Options configures the database client behavior.
type Options struct {
	Ping bool
}

// New opens url and pings it. Remote URLs carry authToken, local "file:"
// URLs ignore it.
func New(ctx context.Context, url, authToken string) (*Client, error) {
	return NewWithOptions(ctx, url, authToken, Options{Ping: true})
}

func NewWithOptions(ctx context.Context, url, authToken string, opts Options) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	db, err := sql.Open("libsql", connString(url, authToken))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isRemote(url) {
		// Turso closes idle streams aggressively, stale pooled connections
		// then fail with "stream not found".
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(0)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(0)
	}

	if opts.Ping {
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
	}

	return &Client{DB: db}, nil
}

func isRemote(url string) bool {
	return !strings.HasPrefix(url, "file:")
}

func connString(url, authToken string) string {
	if !isRemote(url) || authToken == "" {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "authToken=" + authToken
}

// IsStreamError checks if an error is a Turso "stream not found" error.
func IsStreamError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "stream not found")
}

// WithRetry runs fn, retrying up to maxRetries times on stream errors.
// Any other error is returned immediately.
func WithRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), uint64(maxRetries)),
		ctx,
	)

	return backoff.RetryWithData(func() (T, error) {
		result, err := fn()
		if err != nil && !IsStreamError(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}, b)
}
