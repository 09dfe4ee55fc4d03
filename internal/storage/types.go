package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
	ErrBadKey   = errors.New("storage: invalid key")
)

// Record keys. Each is an independently keyed durable record.
const (
	KeySnoozeQueue  = "snooze_queue"
	KeyHistory      = "history"
	KeyFirstRun     = "first_run"
	KeyDebugCapture = "debug_capture"
)

// Config configures storage.
//
// Driver values:
//   - "file": one JSON file per key under Path (atomic tmp+rename writes)
//   - "diskv": diskv-backed key/value directory under Path
//   - "sqlite": SQLite database file at Path
//   - "memory": process-local, lost on exit
//
// An empty Driver or "none" means "memory".
type Config struct {
	Driver       string
	Path         string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	CacheSizeMax uint64        // diskv only; 0 means 1MB
}

// Store is a durable key/value record store. Put overwrites the whole
// record and returns only after the write is durable for the driver.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON decodes the record at key into v. ok is false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	if s == nil {
		return false, ErrDisabled
	}
	b, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return true, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and overwrites the record at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	if s == nil {
		return ErrDisabled
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return s.Put(ctx, key, b)
}

func validKey(key string) error {
	if key == "" || len(key) > 128 {
		return ErrBadKey
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return fmt.Errorf("%w: %q", ErrBadKey, key)
		}
	}
	if key == "." || key == ".." {
		return ErrBadKey
	}
	return nil
}
