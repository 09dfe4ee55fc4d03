package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every override variable, e.g.
// REMINDERD_PRESENTATION_TELEGRAM_TOKEN or REMINDERD_STORAGE_PATH.
const EnvPrefix = "REMINDERD_"

// ApplyEnv overlays REMINDERD_* variables onto cfg. Only fields carrying an
// env tag are overridable. A nil environ reads the process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	if cfg == nil {
		return nil
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}
