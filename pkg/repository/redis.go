package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/campusmart/pkg/config"
	"github.com/example/campusmart/pkg/models"
	"github.com/go-redis/redis/v8"
)

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisRepository) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// CachePayment stores a terminally reconciled payment so repeated
// verification polls can short-circuit without touching Mongo. Read-side
// only: a miss always falls through to the payment store.
func (r *RedisRepository) CachePayment(ctx context.Context, p *models.Payment) error {
	key := fmt.Sprintf("payment:%s", p.Reference)
	return r.SetJSON(ctx, key, p, 30*time.Minute)
}

func (r *RedisRepository) GetCachedPayment(ctx context.Context, reference string) (*models.Payment, error) {
	key := fmt.Sprintf("payment:%s", reference)
	var p models.Payment
	if err := r.GetJSON(ctx, key, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CacheQRToken maps a handover QR token to its handover id for fast pickup
// scans at the post point.
func (r *RedisRepository) CacheQRToken(ctx context.Context, token, handoverID string) error {
	key := fmt.Sprintf("handover:qr:%s", token)
	return r.Set(ctx, key, handoverID, 14*24*time.Hour)
}

func (r *RedisRepository) GetHandoverIDByQR(ctx context.Context, token string) (string, error) {
	key := fmt.Sprintf("handover:qr:%s", token)
	return r.Get(ctx, key)
}
