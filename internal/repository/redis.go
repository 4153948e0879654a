package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"rently/internal/config"

	"github.com/redis/go-redis/v9"
)

const holdIndexKey = "hold_expiry"

// RedisHoldIndex keeps hold deadlines in a sorted set scored by expiry time.
type RedisHoldIndex struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisHoldIndex(client *redis.Client) *RedisHoldIndex {
	return &RedisHoldIndex{client: client}
}

func (r *RedisHoldIndex) Track(ctx context.Context, bookingID int64, expiresAt time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	err := r.client.ZAdd(ctx, holdIndexKey, redis.Z{
		Score:  float64(expiresAt.Unix()),
		Member: strconv.FormatInt(bookingID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to track hold in redis: %w", err)
	}
	return nil
}

func (r *RedisHoldIndex) Forget(ctx context.Context, bookingID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.ZRem(ctx, holdIndexKey, strconv.FormatInt(bookingID, 10)).Err(); err != nil {
		return fmt.Errorf("failed to forget hold in redis: %w", err)
	}
	return nil
}

func (r *RedisHoldIndex) Due(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	members, err := r.client.ZRangeByScore(ctx, holdIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due holds from redis: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			// Skip garbage members instead of wedging the reaper.
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
