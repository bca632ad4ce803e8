package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tillpoint/internal/domain"
)

const settlementKeyPrefix = "tillpoint:settlement:"

type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr string, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{client: client}, nil
}

func (r *Redis) GetSettlement(ctx context.Context, idempotencyKey string) (*domain.SettlementResult, bool) {
	payload, err := r.client.Get(ctx, settlementKeyPrefix+idempotencyKey).Bytes()
	if err != nil {
		return nil, false
	}
	var result domain.SettlementResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (r *Redis) PutSettlement(ctx context.Context, idempotencyKey string, result *domain.SettlementResult, ttl time.Duration) {
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, settlementKeyPrefix+idempotencyKey, payload, ttl).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
