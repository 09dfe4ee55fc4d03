package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/peterbourgon/diskv/v3"

	logx "reminderd/pkg/logx"
)

type diskvStore struct {
	d      *diskv.Diskv
	log    logx.Logger
	closed atomic.Bool
}

func openDiskv(cfg Config, log logx.Logger) (Store, error) {
	base := strings.TrimSpace(cfg.Path)
	if base == "" {
		return nil, errors.New("storage.path is required for diskv driver")
	}
	cache := cfg.CacheSizeMax
	if cache == 0 {
		cache = 1024 * 1024 // 1MB
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	d := diskv.New(diskv.Options{
		BasePath:     base,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: cache,
		FilePerm:     0o600,
		PathPerm:     0o755,
		TempDir:      filepath.Join(base, ".tmp"),
	})
	return &diskvStore{d: d, log: log}, nil
}

func (s *diskvStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	if err := validKey(key); err != nil {
		return nil, false, err
	}
	if !s.d.Has(key) {
		return nil, false, nil
	}
	b, err := s.d.Read(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *diskvStore) Put(_ context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := validKey(key); err != nil {
		return err
	}
	// With TempDir set diskv writes a temp file, fsyncs, then renames.
	return s.d.WriteStream(key, bytes.NewReader(value), true)
}

func (s *diskvStore) Delete(_ context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.d.Erase(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *diskvStore) Close() error {
	s.closed.Store(true)
	return nil
}
