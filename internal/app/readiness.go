package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	httpserver "github.com/fairyhunter13/jobharvest/internal/adapter/httpserver"
)

// Pinger is the minimal interface for a dependency capable of Ping.
// pgxpool.Pool and the franz-go client both satisfy it.
type Pinger interface{ Ping(ctx context.Context) error }

// RedisClient is the minimal Redis surface needed for readiness.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// BuildReadinessChecks wires readiness probes for whichever dependencies
// the process actually holds. Nil dependencies are skipped rather than
// reported unhealthy, so both binaries share this builder.
func BuildReadinessChecks(db Pinger, rdb RedisClient, broker Pinger) map[string]httpserver.ReadinessCheck {
	checks := make(map[string]httpserver.ReadinessCheck)
	if db != nil {
		checks["postgres"] = func(ctx context.Context) error {
			if err := db.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return nil
		}
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		}
	}
	if broker != nil {
		checks["kafka"] = func(ctx context.Context) error {
			if err := broker.Ping(ctx); err != nil {
				return fmt.Errorf("kafka: %w", err)
			}
			return nil
		}
	}
	return checks
}
