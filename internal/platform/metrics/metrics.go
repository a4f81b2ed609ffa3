package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the motion tracker.
type Metrics struct {
	registry            *prometheus.Registry
	commandsApplied     prometheus.Counter
	commandDecodeErrors prometheus.Counter
	commandRejected     prometheus.Counter
	ticksTotal          prometheus.Counter
	tickOverruns        prometheus.Counter
	storeSaveErrors     prometheus.Counter
	publishErrors       *prometheus.CounterVec
	activeRobots        prometheus.Gauge
	httpRequests        prometheus.Counter
	httpErrors          prometheus.Counter
}

// New creates and registers Prometheus metrics for the tracker.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	commandsApplied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "armtracker_commands_applied_total",
		Help: "Total number of joint commands applied to robot state",
	})
	commandDecodeErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "armtracker_command_decode_errors_total",
		Help: "Total number of inbound messages dropped because they failed to decode",
	})
	commandRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "armtracker_commands_rejected_total",
		Help: "Total number of decoded commands rejected (e.g. out-of-range joint)",
	})
	ticksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "armtracker_ticks_total",
		Help: "Total number of tick cycles completed across all robots",
	})
	tickOverruns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "armtracker_tick_overruns_total",
		Help: "Total number of ticks that ran longer than their interval",
	})
	storeSaveErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "armtracker_store_save_errors_total",
		Help: "Total number of failed state store writes",
	})
	publishErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "armtracker_publish_errors_total",
		Help: "Total number of failed pose publishes, by topic",
	}, []string{"topic"})
	activeRobots := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "armtracker_active_robots",
		Help: "Number of robots whose ingest and scheduler loops are running",
	})
	httpRequests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "armtracker_http_requests_total",
		Help: "Total number of HTTP requests received on the health listener",
	})
	httpErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "armtracker_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		commandsApplied,
		commandDecodeErrors,
		commandRejected,
		ticksTotal,
		tickOverruns,
		storeSaveErrors,
		publishErrors,
		activeRobots,
		httpRequests,
		httpErrors,
	)

	return &Metrics{
		registry:            registry,
		commandsApplied:     commandsApplied,
		commandDecodeErrors: commandDecodeErrors,
		commandRejected:     commandRejected,
		ticksTotal:          ticksTotal,
		tickOverruns:        tickOverruns,
		storeSaveErrors:     storeSaveErrors,
		publishErrors:       publishErrors,
		activeRobots:        activeRobots,
		httpRequests:        httpRequests,
		httpErrors:          httpErrors,
	}
}

// IncRequests increments the HTTP request counter.
func (m *Metrics) IncRequests() {
	m.httpRequests.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	m.httpErrors.Inc()
}

// IncCommandsApplied increments the applied-commands counter.
func (m *Metrics) IncCommandsApplied() {
	m.commandsApplied.Inc()
}

// IncCommandDecodeErrors increments the decode-error counter.
func (m *Metrics) IncCommandDecodeErrors() {
	m.commandDecodeErrors.Inc()
}

// IncCommandsRejected increments the rejected-commands counter.
func (m *Metrics) IncCommandsRejected() {
	m.commandRejected.Inc()
}

// IncTicks increments the completed-tick counter.
func (m *Metrics) IncTicks() {
	m.ticksTotal.Inc()
}

// IncTickOverruns increments the tick-overrun counter.
func (m *Metrics) IncTickOverruns() {
	m.tickOverruns.Inc()
}

// IncStoreSaveErrors increments the store-save-error counter.
func (m *Metrics) IncStoreSaveErrors() {
	m.storeSaveErrors.Inc()
}

// IncPublishErrors increments the publish-error counter for one topic.
func (m *Metrics) IncPublishErrors(topic string) {
	m.publishErrors.WithLabelValues(topic).Inc()
}

// SetActiveRobots sets the active robots gauge.
func (m *Metrics) SetActiveRobots(n int) {
	m.activeRobots.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// active robots). The underlying scrape handler is built once, not per
// request.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	scrape := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		scrape.ServeHTTP(w, r)
	})
}
