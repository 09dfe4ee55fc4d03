package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"

	"reminderd/internal/analytics"
	"reminderd/internal/backend"
	"reminderd/internal/center"
	"reminderd/internal/clock"
	"reminderd/internal/config"
	"reminderd/internal/dispatch"
	"reminderd/internal/eventbus"
	"reminderd/internal/history"
	"reminderd/internal/inbound"
	"reminderd/internal/lifecycle"
	"reminderd/internal/normalize"
	"reminderd/internal/notifier"
	"reminderd/internal/observability/debugserver"
	"reminderd/internal/observability/metrics"
	"reminderd/internal/presentation"
	"reminderd/internal/presentation/console"
	"reminderd/internal/presentation/telegram"
	rtsup "reminderd/internal/runtime/supervisor"
	"reminderd/internal/snooze"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

// StopReason is logged when the daemon shuts down.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

const settledIDs = 1024

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	clk   clock.Clock

	lifecycle *lifecycle.Store
	history   *history.Ledger
	snooze    *snooze.Scheduler
	capture   *normalize.Capture
	center    *center.Center

	notif   *notifier.Service
	feed    *inbound.Feed
	console *console.Console
	tg      *telegram.Presenter
	metrics *metrics.Collector
	debug   *debugserver.Service

	consoleCommands bool
}

type options struct {
	in      io.Reader
	out     io.Writer
	environ map[string]string
	clk     clock.Clock
}

type Option func(*options)

// WithStdio replaces the console presenter's input and output.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(o *options) { o.in, o.out = in, out }
}

// WithEnviron pins the variables used for config overrides.
func WithEnviron(env map[string]string) Option { return func(o *options) { o.environ = env } }

func WithClock(c clock.Clock) Option { return func(o *options) { o.clk = c } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	o := options{in: os.Stdin, out: os.Stdout}
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

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	comp := func(name string) logx.Logger { return logSvc.Logger().With(logx.String("comp", name)) }

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, comp("storage"))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	a := &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		bus:   bus,
		store: store,
		clk:   clk,
	}
	if err := a.build(cfg, loc, o, comp); err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, loc *time.Location, o options, comp func(string) logx.Logger) error {
	ctx := context.Background()

	// Presenters.
	var presenters []presentation.Presenter
	var sinks notifier.Fanout
	if cfg.Presentation.Console.Enabled {
		a.console = console.New(console.Config{NoColor: cfg.Presentation.Console.NoColor, Location: loc}, o.in, o.out, comp("console"))
		a.consoleCommands = cfg.Presentation.Console.Commands
		presenters = append(presenters, a.console)
		sinks = append(sinks, a.console)
	}
	if cfg.Presentation.Telegram.Enabled {
		tc, err := mapTelegramConfig(cfg, loc)
		if err != nil {
			return err
		}
		tg, err := telegram.New(tc, comp("telegram"))
		if err != nil {
			return err
		}
		a.tg = tg
		presenters = append(presenters, tg)
		sinks = append(sinks, tg)
		a.logs.SetRemoteSink(tg)
	}
	if len(presenters) == 0 {
		a.log.Warn("no presenter enabled; reminders are tracked but not shown")
	}
	var presenter presentation.Presenter
	switch len(presenters) {
	case 0:
	case 1:
		presenter = presenters[0]
	default:
		presenter = presentation.Multi{Presenters: presenters, Log: comp("presentation")}
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	a.notif = notifier.New(ncfg, sinks, comp("notifier"), a.bus, a.clk)

	// Core pipeline.
	a.lifecycle = lifecycle.New(settledIDs)
	a.history = history.New(history.Config{MaxEntries: cfg.History.MaxEntries, Location: loc}, history.Deps{
		Store: a.store, Clock: a.clk, Log: comp("history"), Bus: a.bus,
	})
	if err := a.history.Load(ctx); err != nil {
		a.log.Warn("history load failed; starting empty", logx.Err(err))
	}

	a.capture = normalize.NewCapture(cfg.Debug.CaptureSize, a.store, a.clk, comp("capture"))
	a.capture.Enable(cfg.Debug.Capture)
	if err := a.capture.Load(ctx); err != nil {
		a.log.Debug("capture load failed", logx.Err(err))
	}
	norm := normalize.New(comp("normalize"), normalize.WithClock(a.clk), normalize.WithCapture(a.capture))

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return err
	}
	disp := dispatch.New(dcfg, dispatch.Deps{
		Store:     a.lifecycle,
		Presenter: presenter,
		Audio:     newAudioPlayer(cfg, o.out, comp("audio")),
		Clock:     a.clk,
		Log:       comp("dispatch"),
		Bus:       a.bus,
		FirstRun:  &dispatch.StoreFirstRun{Store: a.store, Log: comp("firstrun")},
	})

	scfg, err := mapSnoozeConfig(cfg)
	if err != nil {
		return err
	}
	a.snooze = snooze.New(scfg, snooze.Deps{
		Lifecycle: a.lifecycle,
		Store:     a.store,
		Promoter:  disp,
		Clock:     a.clk,
		Log:       comp("snooze"),
		Bus:       a.bus,
	})

	bcfg, creds, backendOn, err := mapBackendConfig(cfg)
	if err != nil {
		return err
	}
	var syncer center.Syncer
	if backendOn {
		client, err := backend.New(bcfg, creds, backend.WithClock(a.clk), backend.WithLogger(comp("backend")))
		if err != nil {
			return err
		}
		syncer = client
	} else {
		a.log.Info("backend not configured; actions stay local")
	}

	ccfg, err := mapCenterConfig(cfg)
	if err != nil {
		return err
	}
	a.center = center.New(ctx, ccfg, center.Deps{
		Normalizer: norm,
		Dispatcher: disp,
		Lifecycle:  a.lifecycle,
		Snooze:     a.snooze,
		History:    a.history,
		Analytics:  analytics.New(a.clk, loc),
		Backend:    syncer,
		Notices:    noticeRouter{notif: a.notif, direct: sinks},
		Clock:      a.clk,
		Log:        comp("center"),
		Bus:        a.bus,
	})

	icfg, err := mapInboundConfig(cfg)
	if err != nil {
		return err
	}
	if icfg.URL != "" {
		a.feed = inbound.New(icfg, a.center, creds, a.clk, comp("inbound"))
	} else {
		a.log.Info("inbound feed not configured")
	}

	// Observability.
	a.metrics = metrics.New(metrics.Gauges{
		Pending: a.lifecycle.Len,
		Snoozed: func() int { return len(a.snooze.Entries()) },
		History: a.history.Len,
	}, comp("metrics"))
	dbg, err := mapDebugConfig(cfg)
	if err != nil {
		return err
	}
	var gather prometheus.Gatherer
	if cfg.Debug.Metrics {
		gather = a.metrics.Registry()
	}
	a.debug = debugserver.New(dbg, a.center, gather, comp("debugserver"))
	a.debug.SetRuntime(a.runtimeView)
	return nil
}

type runtimeView struct {
	App      rtsup.Snapshot         `json:"app"`
	Center   rtsup.Snapshot         `json:"center"`
	Notifier *rtsup.Snapshot        `json:"notifier,omitempty"`
	Notices  []notifier.HistoryItem `json:"notices"`
}

// runtimeView is served by the debug server; it only runs after Start.
func (a *App) runtimeView() any {
	v := runtimeView{
		App:     a.sup.Snapshot(),
		Center:  a.center.Loops(),
		Notices: a.notif.Snapshot(),
	}
	if sup := a.notif.Supervisor(); sup != nil {
		snap := sup.Snapshot()
		v.Notifier = &snap
	}
	return v
}

// Center exposes the orchestrator, mainly for tests and embedding.
func (a *App) Center() *center.Center { return a.center }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Reject reloads that would fail when mapped, not only ones that fail to parse.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDebugConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSnoozeConfig(cfg); err != nil {
			return err
		}
		_, err := mapStorageConfig(cfg)
		return err
	})
	run := a.sup.Context()

	if a.notif.Enabled() {
		a.notif.Start(run)
	}
	if a.tg != nil {
		if err := a.tg.Start(run); err != nil {
			return err
		}
	}
	if err := a.snooze.Start(run); err != nil {
		return err
	}
	if a.feed != nil {
		if err := a.feed.Start(run); err != nil {
			return err
		}
	}
	if a.debug.Enabled() {
		a.debug.Start(run)
	}

	a.sup.Go0("metrics.collect", func(c context.Context) { a.metrics.Run(c, a.bus) })

	if a.console != nil && a.consoleCommands {
		a.sup.Go0("console.commands", func(c context.Context) {
			if err := a.console.Run(c); err != nil {
				a.log.Warn("console command reader stopped", logx.Err(err))
			}
		})
	}

	// Debug trail of every bus event.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("app started")
	return nil
}

// applyConfig hot-applies what can change without a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "storage", "inbound", "presentation", "timezone", "history":
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogConfig(next))

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if scfg, err := mapSnoozeConfig(next); err != nil {
		a.log.Warn("invalid snooze config; keeping previous", logx.Err(err))
	} else {
		a.snooze.Apply(scfg)
	}
	if ccfg, err := mapCenterConfig(next); err != nil {
		a.log.Warn("invalid snooze defaults; keeping previous", logx.Err(err))
	} else {
		a.center.Apply(ccfg)
	}

	a.capture.Enable(next.Debug.Capture)
	if dcfg, err := mapDebugConfig(next); err != nil {
		a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
	} else {
		a.debug.Reconfigure(ctx, dcfg)
	}

	eventbus.Publish(a.bus, eventbus.TypeConfigReload, sections)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step runs one shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// fn must honor stepCtx; if it doesn't, keep watching so the leak is visible.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Inputs first, then the pipeline, then outputs.
	step("inbound", 2*time.Second, func(c context.Context) error {
		if a.feed != nil {
			return a.feed.Stop(c)
		}
		return nil
	})
	step("snooze", 2*time.Second, func(c context.Context) error { a.snooze.Stop(c); return nil })
	step("center", 3*time.Second, func(c context.Context) error { return a.center.Stop(c) })
	step("debugserver", 1*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("notifier", 1*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("telegram", 2*time.Second, func(c context.Context) error {
		if a.tg != nil {
			return a.tg.Stop(c)
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
