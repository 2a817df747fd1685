package cache

import (
	"context"
	"fmt"
	"strings"

	"price-discovery/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisStore 以 Redis 字串鍵保存紀錄，多個行程可共用
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOptions Redis 後端設定
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore 建立 Redis 後端並測試連線
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, opts.Prefix), nil
}

// NewRedisStoreWithClient 使用既有的 client
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Get 取得紀錄
func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to get cache: %w", err)
	}

	var rec Record
	if err := common.ParseJSONBytes(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal cache: %w", err)
	}
	return rec, nil
}

// Put 寫入紀錄。不設定 Redis 過期時間，清理交由 Manager.EvictStale
func (s *RedisStore) Put(ctx context.Context, key string, rec Record) error {
	data, err := common.ToJSON(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal cache record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Delete 刪除紀錄
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// Entries 以 SCAN 列出前綴下的鍵再批次讀取
func (s *RedisStore) Entries(ctx context.Context) ([]Entry, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache keys: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := common.ParseJSON(str, &rec); err != nil {
			common.LogWarn("Removing corrupt cache record",
				zap.String("key", keys[i]),
				zap.Error(err),
			)
			if delErr := s.client.Del(ctx, keys[i]).Err(); delErr != nil {
				common.LogWarn("Failed to remove corrupt cache record", zap.String("key", keys[i]), zap.Error(delErr))
			}
			continue
		}
		entries = append(entries, Entry{
			Key:       strings.TrimPrefix(keys[i], s.prefix),
			Timestamp: rec.Timestamp,
			TTL:       rec.TTL,
		})
	}
	return entries, nil
}

// Close 關閉連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client 回傳底層 client，供事件發布共用連線
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// RedisClient 後端為 Redis 時回傳其連線，否則回傳 nil
func (m *Manager) RedisClient() *redis.Client {
	if m == nil {
		return nil
	}
	if rs, ok := m.store.(*RedisStore); ok {
		return rs.Client()
	}
	return nil
}
