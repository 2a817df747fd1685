package cache

import (
	"context"
	"sync"
)

// MemoryStore 行程內的快取後端，主要用於測試與單機部署
type MemoryStore struct {
	mu    sync.RWMutex
	store map[string]Record
}

// NewMemoryStore 創建記憶體後端
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: make(map[string]Record)}
}

// Get 取得紀錄
func (s *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.store[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	// 複製內容，避免呼叫端修改共用切片
	content := make([]byte, len(rec.Content))
	copy(content, rec.Content)
	rec.Content = content
	return rec, nil
}

// Put 寫入紀錄
func (s *MemoryStore) Put(_ context.Context, key string, rec Record) error {
	content := make([]byte, len(rec.Content))
	copy(content, rec.Content)
	rec.Content = content

	s.mu.Lock()
	s.store[key] = rec
	s.mu.Unlock()
	return nil
}

// Delete 刪除紀錄
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.store, key)
	}
	return nil
}

// Entries 列出紀錄摘要
func (s *MemoryStore) Entries(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.store))
	for key, rec := range s.store {
		entries = append(entries, Entry{Key: key, Timestamp: rec.Timestamp, TTL: rec.TTL})
	}
	return entries, nil
}

// Close 清空資料
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.store = make(map[string]Record)
	s.mu.Unlock()
	return nil
}
