// Package store provides the durable key-value storage used by the
// key manager and rate limiter for quota counters and window buckets.
//
// Supported backends:
// - Memory: for development and testing (default)
// - File: for single-node production deployments
// - Redis: for distributed production deployments
package store

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// Type represents the type of storage backend
type Type string

const (
	TypeMemory Type = "memory"
	TypeFile   Type = "file"
	TypeRedis  Type = "redis"
)

// Config is the configuration for all store implementations
type Config struct {
	// Type is the storage backend type
	Type Type `json:"type" yaml:"type"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig contains Redis-specific configuration
type RedisConfig struct {
	// Host is the Redis server host
	Host string `json:"host" yaml:"host"`

	// Port is the Redis server port
	Port int `json:"port" yaml:"port"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultConfig returns the default store configuration
func DefaultConfig() Config {
	return Config{
		Type:    TypeMemory,
		BaseDir: "./data/imageflow",
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "imageflow:",
		},
	}
}

// KVStore is an opaque durable key-value store. Values are raw bytes;
// callers own serialization. Load returns ErrNotFound for missing keys.
type KVStore interface {
	// Load returns the value stored under key
	Load(ctx context.Context, key string) ([]byte, error)

	// Save writes the value under key, overwriting any previous value
	Save(ctx context.Context, key string, value []byte) error

	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// New creates a KVStore for the configured backend type
func New(config Config) (KVStore, error) {
	switch config.Type {
	case TypeFile:
		return NewFileStore(config)
	case TypeRedis:
		return NewRedisStore(config)
	case TypeMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, ErrInvalidInput
	}
}
