package store

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// ErrSlotMiss 表示持久化槽位不存在
var ErrSlotMiss = errors.New("slot miss")

// KV 持久化端口（单个命名槽位的读写），便于在单元测试中替换 Redis
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Del(ctx context.Context, key string) error
}

// RedisKV 基于 go-redis 的 KV 实现（不设置 TTL）
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrSlotMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
