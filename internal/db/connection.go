// Package db contains code for connecting to the database.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicportal/portal-sync/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnectTimeout  = 10 * time.Second
	defaultConnectRetry    = time.Minute
)

// PoolOption configures NewPool
type PoolOption func(*poolOptions)

type poolOptions struct {
	retryFor time.Duration
}

// WithConnectRetry sets how long NewPool keeps retrying the initial ping.
// Zero disables retries.
func WithConnectRetry(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		o.retryFor = d
	}
}

// NewPool creates a bounded connection pool from the provided configuration and
// waits until the database answers a ping, retrying with exponential backoff.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, opts ...PoolOption) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	o := &poolOptions{retryFor: defaultConnectRetry}
	for _, opt := range opts {
		opt(o)
	}

	if cfg.UsesAWSRDSIAM() {
		beforeConnect, err := awsRDSBeforeConnect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to configure AWS RDS IAM authentication: %w", err)
		}
		poolCfg.BeforeConnect = beforeConnect
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ping := func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			slog.Warn("Database not reachable yet", "host", cfg.Host, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	retryOpts := []backoff.RetryOption{backoff.WithBackOff(backoff.NewExponentialBackOff())}
	if o.retryFor > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(o.retryFor))
	} else {
		retryOpts = append(retryOpts, backoff.WithMaxTries(1))
	}

	if _, err := backoff.Retry(ctx, ping, retryOpts...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connection established",
		"user", cfg.User,
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
		"max_conns", poolCfg.MaxConns)

	return pool, nil
}

// PoolConfig builds the pgxpool configuration, applying pool size defaults
func PoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("database host is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("database port is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("database user is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = defaultMaxOpenConns
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = defaultMaxIdleConns
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	connMaxLifetime := defaultConnMaxLifetime
	if cfg.ConnMaxLifetime != "" {
		duration, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("invalid connection max lifetime: %w", err)
		}
		connMaxLifetime = duration
	}

	// With IAM authentication the password is set per connection by NewPool
	connStr := cfg.ConnectionStringWithPassword("")
	if !cfg.UsesAWSRDSIAM() {
		var err error
		connStr, err = cfg.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to get database password: %w", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	poolCfg.MaxConns = maxOpenConns
	poolCfg.MinConns = maxIdleConns
	poolCfg.MaxConnLifetime = connMaxLifetime
	poolCfg.ConnConfig.ConnectTimeout = defaultConnectTimeout

	return poolCfg, nil
}

// ConnectionString returns a connection string for one-off connections such as
// migrations. With AWS RDS IAM authentication a fresh token is used as password.
func ConnectionString(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}
	if !cfg.UsesAWSRDSIAM() {
		return cfg.GetConnectionString()
	}

	region, err := awsRegion(ctx, cfg)
	if err != nil {
		return "", err
	}
	token, err := awsRDSToken(ctx, cfg, region)
	if err != nil {
		return "", err
	}
	return cfg.ConnectionStringWithPassword(token), nil
}
