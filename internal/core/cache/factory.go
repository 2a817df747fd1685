package cache

import (
	"context"
	"fmt"

	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/pkg/common"

	"go.uber.org/zap"
)

// NewFromConfig 依設定建立後端與管理器。快取停用時回傳 nil 管理器。
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Manager, error) {
	if !cfg.Cache.Enabled {
		common.LogInfo("Cache disabled")
		return nil, nil
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := NewManager(store, Options{
		DefaultTTL: cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	})

	common.LogInfo("快取管理員已初始化",
		zap.String("後端", cfg.Cache.Backend),
		zap.Int("最大容量", cfg.Cache.MaxEntries),
		zap.Duration("存活時間", cfg.Cache.TTL),
		zap.Duration("清理間隔", cfg.Cache.CleanupInterval),
	)
	return m, nil
}

func newStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Cache.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.Cache.Dir)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.KeyPrefix,
		})
	case config.BackendSQLite:
		return NewSQLiteStore(ctx, cfg.Cache.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
