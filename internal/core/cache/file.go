package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"price-discovery/internal/pkg/common"

	"go.uber.org/zap"
)

const fileExt = ".json"

// errCorruptRecord 檔案存在但內容無法解析
var errCorruptRecord = errors.New("cache: corrupt record")

// FileStore 每個鍵一個 JSON 檔：{ "content": ..., "timestamp": ..., "ttl": ... }
type FileStore struct {
	dir string
}

// NewFileStore 建立檔案後端，目錄不存在時自動建立
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

// Get 讀取紀錄檔
func (s *FileStore) Get(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read cache file: %w", err)
	}
	defer f.Close()

	var rec Record
	if err := common.DecodeJSON(f, &rec); err != nil {
		return Record{}, fmt.Errorf("decode cache file %s: %w: %v", key, errCorruptRecord, err)
	}
	return rec, nil
}

// Put 先寫暫存檔再 rename，讀者不會看到寫到一半的內容
func (s *FileStore) Put(ctx context.Context, key string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := common.ToJSON(rec)
	if err != nil {
		return fmt.Errorf("encode cache record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Delete 刪除紀錄檔
func (s *FileStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove cache file: %w", err)
		}
	}
	return nil
}

// Entries 掃描目錄。內容損毀的檔案直接刪除，其他讀取失敗記錄後略過
func (s *FileStore) Entries(ctx context.Context) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key := strings.TrimSuffix(name, fileExt)
		rec, err := s.Get(ctx, key)
		if errors.Is(err, errCorruptRecord) {
			common.LogWarn("Removing corrupt cache file",
				zap.String("file", name),
				zap.Error(err),
			)
			if rmErr := os.Remove(s.path(key)); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				common.LogWarn("Failed to remove corrupt cache file", zap.String("file", name), zap.Error(rmErr))
			}
			continue
		}
		if err != nil {
			common.LogWarn("Skipping unreadable cache file",
				zap.String("file", name),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, Entry{Key: key, Timestamp: rec.Timestamp, TTL: rec.TTL})
	}
	return entries, nil
}

// Close 檔案後端無需釋放
func (s *FileStore) Close() error {
	return nil
}
