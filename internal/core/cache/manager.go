package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"price-discovery/internal/pkg/common"

	"go.uber.org/zap"
)

// Options 快取管理器設定
type Options struct {
	// DefaultTTL 未指定 ttl 時使用
	DefaultTTL time.Duration
	// MaxEntries 清理後保留的最大筆數
	MaxEntries int
	// Now 可替換時鐘，預設 time.Now
	Now func() time.Time
}

// Manager 快取管理器。鍵先經 sha256 雜湊再交給後端保存。
// nil *Manager 可安全呼叫，所有讀取皆視為未命中。
type Manager struct {
	store      Store
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time

	// 清理與寫入互斥，避免清理期間刪掉剛寫入的鍵
	evictMu sync.Mutex

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	failures  atomic.Int64
}

// Stats 快取統計
type Stats struct {
	Entries   int     `json:"entries"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Errors    int64   `json:"errors"`
	HitRatio  float64 `json:"hit_ratio"`
}

// NewManager 創建新的快取管理器
func NewManager(store Store, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 6 * time.Hour
	}
	return &Manager{
		store:      store,
		defaultTTL: opts.DefaultTTL,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
	}
}

// Key 由多段字串產生穩定的快取鍵
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get 取得快取值。過期、不存在或任何後端錯誤都回傳 false。
func Get[T any](ctx context.Context, m *Manager, key string) (T, bool) {
	var zero T
	if m == nil || m.store == nil {
		return zero, false
	}

	hashed := Key(key)
	rec, err := m.store.Get(ctx, hashed)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.failures.Add(1)
			common.LogWarn("Cache read failed",
				zap.String("key", hashed),
				zap.Error(err),
			)
		}
		m.misses.Add(1)
		common.LogCacheMiss("store", hashed)
		return zero, false
	}

	// 過期紀錄不主動刪除，由 EvictStale 統一處理
	if rec.Expired(m.now()) {
		m.misses.Add(1)
		common.LogCacheMiss("expired", hashed)
		return zero, false
	}

	var value T
	if err := json.Unmarshal(rec.Content, &value); err != nil {
		m.failures.Add(1)
		m.misses.Add(1)
		common.LogWarn("Cache content decode failed",
			zap.String("key", hashed),
			zap.Error(err),
		)
		return zero, false
	}

	m.hits.Add(1)
	common.LogCacheHit("store", hashed)
	return value, true
}

// Set 寫入快取。ttl <= 0 時使用預設值。
func Set[T any](ctx context.Context, m *Manager, key string, value T, ttl time.Duration) error {
	if m == nil || m.store == nil {
		return ErrDisabled
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	content, err := json.Marshal(value)
	if err != nil {
		m.failures.Add(1)
		return err
	}

	m.evictMu.Lock()
	defer m.evictMu.Unlock()

	if err := m.store.Put(ctx, Key(key), NewRecord(content, m.now(), ttl)); err != nil {
		m.failures.Add(1)
		return err
	}
	return nil
}

// Delete 移除快取值
func (m *Manager) Delete(ctx context.Context, key string) error {
	if m == nil || m.store == nil {
		return ErrDisabled
	}
	return m.store.Delete(ctx, Key(key))
}

// EvictStale 先移除所有過期紀錄；若剩餘筆數仍超過上限，
// 依寫入時間由舊到新刪除，直到剛好等於上限。回傳刪除筆數。
func (m *Manager) EvictStale(ctx context.Context) (int, error) {
	if m == nil || m.store == nil {
		return 0, nil
	}

	m.evictMu.Lock()
	defer m.evictMu.Unlock()

	entries, err := m.store.Entries(ctx)
	if err != nil {
		m.failures.Add(1)
		return 0, err
	}

	now := m.now()
	var stale []string
	fresh := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Expired(now) {
			stale = append(stale, e.Key)
			continue
		}
		fresh = append(fresh, e)
	}

	if m.maxEntries > 0 && len(fresh) > m.maxEntries {
		sort.SliceStable(fresh, func(i, j int) bool {
			return fresh[i].Timestamp < fresh[j].Timestamp
		})
		overflow := len(fresh) - m.maxEntries
		for _, e := range fresh[:overflow] {
			stale = append(stale, e.Key)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := m.store.Delete(ctx, stale...); err != nil {
		m.failures.Add(1)
		return 0, err
	}

	m.evictions.Add(int64(len(stale)))
	common.LogInfo("Cleaned up cache entries",
		zap.Int("removed", len(stale)),
		zap.Int("before", len(entries)),
		zap.Int("remaining", len(entries)-len(stale)),
		zap.Int64("total_evictions", m.evictions.Load()),
	)
	return len(stale), nil
}

// StartCleanup 啟動定期清理的協程，ctx 取消時結束
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	if m == nil || m.store == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.EvictStale(ctx); err != nil && ctx.Err() == nil {
					common.LogError("快取清理失敗", zap.Error(err))
				}
			}
		}
	}()
}

// Stats 取得快取統計
func (m *Manager) Stats(ctx context.Context) Stats {
	if m == nil || m.store == nil {
		return Stats{}
	}

	stats := Stats{
		MaxSize:   m.maxEntries,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Errors:    m.failures.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(total)
	}
	if entries, err := m.store.Entries(ctx); err == nil {
		stats.Entries = len(entries)
	}
	return stats
}

// Close 關閉快取管理器
func (m *Manager) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	common.LogInfo("快取管理員已關閉",
		zap.Int64("命中次數", m.hits.Load()),
		zap.Int64("未命中次數", m.misses.Load()),
		zap.Int64("淘汰次數", m.evictions.Load()),
	)
	return m.store.Close()
}
