package database

import (
	"context"
	"fmt"
	"time"

	"github.com/chronica-ai/platform/pkg/common/config"
	"github.com/chronica-ai/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens the coordination client used for per-patient processing
// locks. Same explicit-handle discipline as ConnectPostgres.
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	logger.Log.Info("Connected to Redis")
	return client, nil
}
