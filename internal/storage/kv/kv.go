// Package kv provides the key/value stores that hold client state between
// runs: the session token, its decoded claims and the cached wallet.
package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Store persists string values by key. SetMany must apply all values or none.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendWAL    = "wal"
	BackendRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Namespace     string
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// New creates the store described by cfg.
func New(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFileStore(cfg.Dir, cfg.Namespace)
	case "", BackendWAL:
		return NewWALStore(cfg.Dir)
	case BackendRedis:
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Namespace)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

// Set writes a single key.
func Set(ctx context.Context, s Store, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

func copyState(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
