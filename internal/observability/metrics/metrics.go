package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"reminderd/internal/eventbus"
	logx "reminderd/pkg/logx"
)

const namespace = "reminderd"

// Gauges reports live queue sizes. Either func may be nil.
type Gauges struct {
	Pending func() int
	Snoozed func() int
	History func() int
}

// Collector turns bus events into Prometheus series on its own registry.
type Collector struct {
	reg *prometheus.Registry
	log logx.Logger

	dispatched  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	snoozes     *prometheus.CounterVec
	history     prometheus.Counter
	backendErrs *prometheus.CounterVec
	notices     *prometheus.CounterVec
	reloads     prometheus.Counter
}

func New(g Gauges, log logx.Logger) *Collector {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Collector{
		reg: prometheus.NewRegistry(),
		log: log,
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_dispatched_total",
			Help:      "Reminders surfaced to the user.",
		}, []string{"kind", "priority"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Accepted user actions by action.",
		}, []string{"action"}),
		snoozes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snooze_events_total",
			Help:      "Snooze queue activity.",
		}, []string{"event"}),
		history: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_appended_total",
			Help:      "History ledger appends.",
		}),
		backendErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Failed backend confirmations by action.",
		}, []string{"action"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "Notices delivered or dropped.",
		}, []string{"result"}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Applied configuration reloads.",
		}),
	}
	c.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.dispatched, c.transitions, c.snoozes, c.history, c.backendErrs, c.notices, c.reloads,
	)
	gauge := func(name, help string, fn func() int) {
		if fn == nil {
			return
		}
		c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn()) }))
	}
	gauge("pending_reminders", "Reminders awaiting a user action.", g.Pending)
	gauge("snoozed_reminders", "Entries in the snooze queue.", g.Snoozed)
	gauge("history_entries", "Entries held by the history ledger.", g.History)
	return c
}

// Registry is what the debug server exposes on /metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Run consumes bus events until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) {
	if bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	c.log.Debug("metrics collector subscribed")
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}

// Observe records one event.
func (c *Collector) Observe(e eventbus.Event) {
	d, _ := e.Data.(eventbus.ReminderData)
	switch e.Type {
	case eventbus.TypeDispatched:
		c.dispatched.WithLabelValues(d.Kind, d.Priority).Inc()
	case eventbus.TypeTransitioned:
		c.transitions.WithLabelValues(d.Action).Inc()
	case eventbus.TypeSnoozed:
		c.snoozes.WithLabelValues("scheduled").Inc()
	case eventbus.TypePromoted:
		c.snoozes.WithLabelValues("promoted").Inc()
	case eventbus.TypeHistory:
		c.history.Inc()
	case eventbus.TypeBackendError:
		c.backendErrs.WithLabelValues(d.Action).Inc()
	case eventbus.TypeNoticeSent:
		c.notices.WithLabelValues("sent").Inc()
	case eventbus.TypeNoticeFailed:
		c.notices.WithLabelValues("failed").Inc()
	case eventbus.TypeConfigReload:
		c.reloads.Inc()
	}
}
