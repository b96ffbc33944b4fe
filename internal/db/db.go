package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/techdengue/analytics/internal/config"
)

// ConnectionError means the database could not be reached after the retry budget.
type ConnectionError struct {
	Host     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database %s unreachable after %d attempt(s): %v", e.Host, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError wraps a statement that kept failing after retries.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Options tunes pooling and retry behaviour.
type Options struct {
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	Retries       int
	RetryDelay    time.Duration
	SlowThreshold time.Duration
	LogLevel      logger.LogLevel
}

// DefaultOptions keeps the pool small; the GIS source is shared with other consumers.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:  5,
		MaxIdleConns:  5,
		MaxLifetime:   30 * time.Minute,
		Retries:       3,
		RetryDelay:    2 * time.Second,
		SlowThreshold: 500 * time.Millisecond,
		LogLevel:      logger.Warn,
	}
}

// Connect opens a pooled gorm connection and pings it, retrying with a fixed delay.
func Connect(ctx context.Context, cfg config.DBConfig, opts Options) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}

	// Surface slow queries without logging every statement.
	lg := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		gdb, err := open(ctx, cfg, lg, opts)
		if err == nil {
			log.Printf("[db] connected to %s/%s", cfg.Host, cfg.Name)
			return gdb, nil
		}
		lastErr = err
		log.Printf("[db] connect attempt %d/%d to %s failed: %v", attempt, opts.Retries, cfg.Host, err)
		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return nil, &ConnectionError{Host: cfg.Host, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(opts.RetryDelay):
			}
		}
	}
	return nil, &ConnectionError{Host: cfg.Host, Attempts: opts.Retries, Err: lastErr}
}

func open(ctx context.Context, cfg config.DBConfig, lg logger.Interface, opts Options) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{Logger: lg})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.MaxLifetime)
	return gdb, nil
}

// Close releases the pool behind gdb.
func Close(gdb *gorm.DB) {
	if gdb == nil {
		return
	}
	if raw, err := gdb.DB(); err == nil {
		_ = raw.Close()
	}
}
