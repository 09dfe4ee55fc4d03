package app

import (
	"context"
	"os"
	"sort"
	"time"

	"reminderd/internal/analytics"
	"reminderd/internal/clock"
	"reminderd/internal/config"
	"reminderd/internal/history"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

// Tools opens the durable state without starting the daemon. The CLI
// reporting commands use it.
type Tools struct {
	Config    *config.Config
	Location  *time.Location
	Store     storage.Store
	History   *history.Ledger
	Analytics *analytics.Engine
	Log       logx.Logger
}

func OpenTools(cfgPath string, opts ...Option) (*Tools, error) {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	clk := clock.Or(o.clk)

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetEnviron(o.environ)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if level == "" {
		level = "warn"
	}
	log := logx.NewWriter(os.Stderr, level).With(logx.String("comp", "cli"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	ledger := history.New(history.Config{MaxEntries: cfg.History.MaxEntries, Location: loc}, history.Deps{
		Store: store, Clock: clk, Log: log,
	})
	if err := ledger.Load(context.Background()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Tools{
		Config:    cfg,
		Location:  loc,
		Store:     store,
		History:   ledger,
		Analytics: analytics.New(clk, loc),
		Log:       log,
	}, nil
}

// SnoozeQueue reads the persisted queue ordered by due time.
func (t *Tools) SnoozeQueue(ctx context.Context) ([]reminder.SnoozeEntry, error) {
	var q []reminder.SnoozeEntry
	if _, err := storage.GetJSON(ctx, t.Store, storage.KeySnoozeQueue, &q); err != nil {
		return nil, err
	}
	sort.SliceStable(q, func(i, j int) bool { return q[i].DueAt.Before(q[j].DueAt) })
	return q, nil
}

func (t *Tools) Close() error { return t.Store.Close() }
