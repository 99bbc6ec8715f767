package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-progression/retry"
	_ "github.com/lib/pq" // Import postgres driver
)

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// PingTimeout ограничивает одну попытку, PingAttempts - их число при старте.
	PingTimeout  time.Duration
	PingAttempts int
	PingBackoff  time.Duration
}

func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
		PingAttempts:    5,
		PingBackoff:     500 * time.Millisecond,
	}
}

// Open создаёт пул без обращения к серверу.
func Open(dsn string, opts PoolOptions) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return db, nil
}

// Connect открывает пул и ждёт, пока база начнёт отвечать.
func Connect(ctx context.Context, dsn string, opts PoolOptions, logger *slog.Logger) (*sql.DB, error) {
	db, err := Open(dsn, opts)
	if err != nil {
		return nil, err
	}
	if err := waitForDB(ctx, db, opts, logger); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database handle after ping error", slog.Any("error", closeErr))
		}
		return nil, err
	}
	return db, nil
}

func waitForDB(ctx context.Context, db *sql.DB, opts PoolOptions, logger *slog.Logger) error {
	cfg := &retry.Config{
		MaxAttempts:       max(opts.PingAttempts, 1),
		InitialBackoff:    opts.PingBackoff,
		MaxBackoff:        10 * opts.PingBackoff,
		BackoffMultiplier: 2,
	}
	_, err := retry.Do(ctx, cfg, logger, "database ping", func(ctx context.Context) (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
		return struct{}{}, db.PingContext(pingCtx)
	})
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
