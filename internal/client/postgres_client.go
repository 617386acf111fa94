package client

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"haruup-service/internal/config"
	"haruup-service/internal/util"
)

type PostgresClient struct {
	Pool   *pgxpool.Pool
	config *config.PostgresConfig
}

// NewPostgresClient opens a pgx pool and pings it.
func NewPostgresClient(cfg *config.Config, logger *zap.Logger) (*PostgresClient, error) {
	pgConfig := cfg.Postgres

	poolConfig, err := pgxpool.ParseConfig(pgConfig.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Postgres DSN: %w", err)
	}
	poolConfig.MaxConns = pgConfig.MaxConns
	poolConfig.MinConns = pgConfig.MinConns
	poolConfig.MaxConnLifetime = pgConfig.MaxConnLifetime
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info("Postgres client initialized",
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", poolConfig.MaxConns))

	return &PostgresClient{Pool: pool, config: &pgConfig}, nil
}

// NewPostgresClientFromPool wraps an existing pool.
func NewPostgresClientFromPool(pool *pgxpool.Pool) *PostgresClient {
	return &PostgresClient{Pool: pool}
}

// WithTx runs fn inside a transaction, committing on nil and rolling back otherwise.
func (p *PostgresClient) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, p.Pool, fn)
}

func (p *PostgresClient) HealthCheck(ctx context.Context) error {
	if err := p.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (p *PostgresClient) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		util.Info("Postgres pool closed")
	}
}
