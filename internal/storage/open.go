package storage

import (
	"errors"
	"strings"

	logx "reminderd/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	switch driver {
	case "", "none", "memory":
		if driver != "memory" {
			log.Warn("storage driver not set; state will not survive restarts")
		}
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "diskv":
		return openDiskv(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
