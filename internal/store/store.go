package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/trade-enricher/pkg/model"
)

// Store caches enrichment run summaries and keeps an audit trail of
// registry operations. Registry contents themselves are never persisted;
// the registry is always rebuilt from its external source.
type Store interface {
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
	GetRunSummary(ctx context.Context, runID string) (*model.RunSummary, error)
	RecordProductOp(ctx context.Context, op model.ProductOpEvent) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
	runTTL time.Duration
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first, Postgres-backed store. Postgres is
// optional (empty pgURL skips the audit trail); Redis is required.
func NewHybrid(redisAddr string, redisDB int, redisPass, pgURL string, pgPoolConfig PGPoolConfig, runTTL time.Duration, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		DB:       redisDB,
		Password: redisPass,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	if runTTL <= 0 {
		runTTL = 24 * time.Hour
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger, runTTL: runTTL}, nil
}

func runKey(runID string) string {
	return "enricher:run:" + runID
}

// SaveRunSummary caches the summary in Redis for lookup via the API and,
// when Postgres is configured, appends it to the audit trail.
func (s *HybridStore) SaveRunSummary(ctx context.Context, summary model.RunSummary) error {
	if err := s.SetJSON(ctx, runKey(summary.RunID), summary, s.runTTL); err != nil {
		s.logger.Error("store.redis.save_run_failed",
			zap.String("run_id", summary.RunID), zap.Error(err))
		return err
	}

	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO enricher.enrichment_run (
			run_id, rows_in, rows_emitted, rows_dropped,
			unmapped_ids, price_fallbacks, duration_ms, started_at, failed, error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, summary.RunID, summary.RowsIn, summary.RowsEmitted, summary.RowsDropped,
		summary.UnmappedIDs, summary.PriceFallbacks,
		summary.Duration.Milliseconds(), summary.StartedAt, summary.Failed, summary.Error)
	if err != nil {
		s.logger.Error("store.pg.insert_run_failed",
			zap.String("run_id", summary.RunID), zap.Error(err))
	}
	return err
}

// GetRunSummary returns the cached summary, or nil when unknown or expired.
func (s *HybridStore) GetRunSummary(ctx context.Context, runID string) (*model.RunSummary, error) {
	data, err := s.redis.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// RecordProductOp appends one replace/upsert operation to the audit trail.
func (s *HybridStore) RecordProductOp(ctx context.Context, op model.ProductOpEvent) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO enricher.product_op (op, accepted, added, updated, entries, occurred_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, op.Operation, op.Accepted, op.Added, op.Updated, op.Entries)
	if err != nil {
		s.logger.Error("store.pg.insert_product_op_failed",
			zap.String("op", op.Operation), zap.Error(err))
	}
	return err
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
