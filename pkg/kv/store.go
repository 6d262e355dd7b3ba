// Package kv 提供了一个可注入的键值存储抽象。
// 生产环境绑定 Redis，测试环境可替换为内存实现。
// 调用方约定值为 JSON 序列化后的字符串；缺失或损坏的键按"不存在"处理。
package kv

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound 表示键不存在（或已过期）。
var ErrNotFound = errors.New("kv: key not found")

// Store 定义了最小的键值存储接口。
// TTL 为 0 表示永不过期。
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore 创建一个基于 Redis 的 Store 实现。
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
