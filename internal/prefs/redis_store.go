package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 偏好存储的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Namespace 是所有键的公共前缀，默认 "habitkit:prefs:"。
	Namespace string
}

// RedisStore 将偏好持久化到 Redis，供多实例部署共享授权状态。
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore 创建 Redis 偏好存储并验证连通性。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "habitkit:prefs:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisStore{client: client, namespace: namespace}, nil
}

// Get 实现 Store 接口。
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取偏好 %s 失败: %w", key, err)
	}
	return value, true, nil
}

// Set 实现 Store 接口。
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.namespace+key, value, 0).Err(); err != nil {
		return fmt.Errorf("写入偏好 %s 失败: %w", key, err)
	}
	return nil
}

// Delete 实现 Store 接口。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.namespace+key).Err(); err != nil {
		return fmt.Errorf("删除偏好 %s 失败: %w", key, err)
	}
	return nil
}

// List 实现 Store 接口，通过 SCAN 遍历命名空间下的键。
func (s *RedisStore) List(ctx context.Context, prefix string) (map[string]string, error) {
	pattern := s.namespace + prefix + "*"
	out := make(map[string]string)
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		value, err := s.client.Get(ctx, full).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("遍历偏好失败: %w", err)
		}
		out[strings.TrimPrefix(full, s.namespace)] = value
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("遍历偏好失败: %w", err)
	}
	return out, nil
}

// Close 实现 Store 接口。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
