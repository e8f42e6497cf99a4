package session

import (
	"context"
	"fmt"
	"time"

	"recipe-importer/internal/infrastructure/config"
	"recipe-importer/internal/pkg/common"

	"github.com/go-redis/redis/v8"
)

const snapshotKeyPrefix = "recipe-importer:session:"

// RedisMirror 以 Redis 保存工作階段快照
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMirror 連線 Redis；未啟用時回傳 nil
func NewRedisMirror(cfg config.SessionConfig) (*RedisMirror, error) {
	if !cfg.RedisEnabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 測試連接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisMirror{client: client, ttl: cfg.TTL}, nil
}

// Save 寫入快照
func (r *RedisMirror) Save(ctx context.Context, snap Snapshot) error {
	data, err := common.ToJSON(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKey(snap.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load 讀取快照
func (r *RedisMirror) Load(ctx context.Context, id string) (Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Snapshot{}, common.ErrSessionNotFound
		}
		return Snapshot{}, fmt.Errorf("failed to get session: %w", err)
	}

	var snap Snapshot
	if err := common.ParseJSONBytes(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return snap, nil
}

// Delete 刪除快照
func (r *RedisMirror) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, snapshotKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return common.ErrSessionNotFound
	}
	return nil
}

// Ping 檢查 Redis 連線
func (r *RedisMirror) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 關閉連線
func (r *RedisMirror) Close() error {
	return r.client.Close()
}

func snapshotKey(id string) string {
	return snapshotKeyPrefix + id
}
