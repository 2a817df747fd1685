package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key       TEXT PRIMARY KEY,
	content   BLOB    NOT NULL,
	stored_at INTEGER NOT NULL,
	ttl       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_stored_at ON cache_entries(stored_at);
`

// SQLiteStore 嵌入式 SQL 後端，一列一筆紀錄
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 開啟（或建立）資料庫檔案
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 單一寫入連線，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get 取得紀錄
func (s *SQLiteStore) Get(ctx context.Context, key string) (Record, error) {
	var rec Record
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content, stored_at, ttl FROM cache_entries WHERE key = ?`, key,
	).Scan(&content, &rec.Timestamp, &rec.TTL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("query cache entry: %w", err)
	}
	rec.Content = content
	return rec, nil
}

// Put 寫入或覆蓋紀錄
func (s *SQLiteStore) Put(ctx context.Context, key string, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, content, stored_at, ttl) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET content = excluded.content, stored_at = excluded.stored_at, ttl = excluded.ttl`,
		key, []byte(rec.Content), rec.Timestamp, rec.TTL,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Delete 刪除紀錄
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM cache_entries WHERE key = ?`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete cache entry: %w", err)
		}
	}
	return tx.Commit()
}

// Entries 列出紀錄摘要
func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, stored_at, ttl FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Timestamp, &e.TTL); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close 關閉資料庫
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
