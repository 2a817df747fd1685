package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound 鍵不存在
	ErrNotFound = errors.New("cache: key not found")
	// ErrDisabled 快取已停用
	ErrDisabled = errors.New("cache: disabled")
)

// Record 持久化的快取紀錄，每個鍵一筆。
// Timestamp 與 TTL 皆以毫秒保存，方便不同後端共用格式。
type Record struct {
	Content   json.RawMessage `json:"content"`
	Timestamp int64           `json:"timestamp"`
	TTL       int64           `json:"ttl"`
}

// NewRecord 以寫入時間與存活時間建立紀錄
func NewRecord(content []byte, storedAt time.Time, ttl time.Duration) Record {
	return Record{
		Content:   json.RawMessage(content),
		Timestamp: storedAt.UnixMilli(),
		TTL:       ttl.Milliseconds(),
	}
}

// StoredAt 寫入時間
func (r Record) StoredAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Lifetime 存活時間
func (r Record) Lifetime() time.Duration {
	return time.Duration(r.TTL) * time.Millisecond
}

// Expired 當 now − storedAt > ttl 時視為邏輯上不存在
func (r Record) Expired(now time.Time) bool {
	return now.Sub(r.StoredAt()) > r.Lifetime()
}

// Entry 清理時使用的紀錄摘要
type Entry struct {
	Key       string
	Timestamp int64
	TTL       int64
}

// Expired 同 Record.Expired
func (e Entry) Expired(now time.Time) bool {
	return Record{Timestamp: e.Timestamp, TTL: e.TTL}.Expired(now)
}

// Store 快取儲存後端
type Store interface {
	// Get 取得紀錄，不存在時回傳 ErrNotFound
	Get(ctx context.Context, key string) (Record, error)
	// Put 寫入紀錄，同鍵以最後一次寫入為準
	Put(ctx context.Context, key string, rec Record) error
	// Delete 刪除多個鍵，不存在的鍵忽略
	Delete(ctx context.Context, keys ...string) error
	// Entries 列出所有紀錄摘要
	Entries(ctx context.Context) ([]Entry, error)
	// Close 釋放資源
	Close() error
}
