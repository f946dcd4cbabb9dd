package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore 是一个基于文件的 KVStore 实现.
// 适合单节点生产部署.
type FileStore struct {
	path   string
	values map[string][]byte // in-memory cache
	mu     sync.RWMutex
	closed bool
}

// 新建文件存储器
func NewFileStore(config Config) (*FileStore, error) {
	baseDir := config.BaseDir
	if baseDir == "" {
		baseDir = DefaultConfig().BaseDir
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	store := &FileStore{
		path:   filepath.Join(baseDir, "kv.json"),
		values: make(map[string][]byte),
	}

	// 装入已存在的数据
	if err := store.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load store from disk: %w", err)
	}

	return store, nil
}

// 从磁盘加载所有键值到内存
func (s *FileStore) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil // No existing data
	}
	if err != nil {
		return err
	}

	// 值以 base64 存储, 保持 JSON 文件可读
	var encoded map[string]string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}

	for key, v := range encoded {
		raw, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("corrupt value for %q: %w", key, err)
		}
		s.values[key] = raw
	}
	return nil
}

// 将全部键值持久化到磁盘
func (s *FileStore) saveToDisk() error {
	encoded := make(map[string]string, len(s.values))
	for key, v := range s.values {
		encoded[key] = base64.StdEncoding.EncodeToString(v)
	}

	data, err := json.MarshalIndent(encoded, "", "  ")
	if err != nil {
		return err
	}

	// 原子写: 写入临时文件后重命名
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, s.path)
}

// Load returns the value stored under key
func (s *FileStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	value, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Save writes the value under key and persists to disk
func (s *FileStore) Save(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.values[key] = stored
	return s.saveToDisk()
}

// 关闭存储器
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.saveToDisk()
}

// Ping checks if the store is healthy
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
