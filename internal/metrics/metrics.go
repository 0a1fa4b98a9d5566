// Package metrics exposes controller state as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/fridge-controller/internal/logic"
)

const namespace = "fridge"

var modes = []logic.Mode{
	logic.ModeStarting,
	logic.ModeNormal,
	logic.ModeUsingCache,
	logic.ModeAwaitingData,
	logic.ModeSafe,
}

// Metrics holds the controller's collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	ticks               *prometheus.CounterVec
	mode                *prometheus.GaugeVec
	temperature         prometheus.Gauge
	readingAge          prometheus.Gauge
	outage              prometheus.Gauge
	fetchFailures       prometheus.Counter
	commands            *prometheus.CounterVec
	commandFailures     prometheus.Counter
	consecutiveFailures prometheus.Gauge
	powerOn             prometheus.Gauge
	attempts            *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Control loop iterations by decided action.",
		}, []string{"action"}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "1 for the current control loop mode, 0 otherwise.",
		}, []string{"mode"}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outdoor_temperature_celsius",
			Help:      "Last outdoor temperature used for a decision.",
		}),
		readingAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading_age_seconds",
			Help:      "Age of the reading used for the last decision.",
		}),
		outage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outage_seconds",
			Help:      "How long temperature fetches have been failing, 0 when healthy.",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Ticks whose temperature fetch failed after retries.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Device commands by requested state and result.",
		}, []string{"state", "result"}),
		commandFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_failures_total",
			Help:      "Device commands that failed after retries.",
		}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_command_failures",
			Help:      "Device commands failed in a row.",
		}),
		powerOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_on",
			Help:      "1 when the outlet was last confirmed on.",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_attempts_total",
			Help:      "Attempts made against external collaborators by operation and outcome.",
		}, []string{"op", "outcome"}),
	}

	m.reg.MustRegister(
		m.ticks,
		m.mode,
		m.temperature,
		m.readingAge,
		m.outage,
		m.fetchFailures,
		m.commands,
		m.commandFailures,
		m.consecutiveFailures,
		m.powerOn,
		m.attempts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.SetMode(logic.ModeStarting)
	return m
}

// SetMode marks mode as the current one.
func (m *Metrics) SetMode(mode logic.Mode) {
	for _, md := range modes {
		v := 0.0
		if md == mode {
			v = 1
		}
		m.mode.WithLabelValues(string(md)).Set(v)
	}
}

// ObserveTick records one loop iteration. reading is nil when none was available.
func (m *Metrics) ObserveTick(mode logic.Mode, action logic.Action, reading *logic.Reading, now time.Time, outage time.Duration, fetchFailed bool) {
	m.SetMode(mode)
	if action != "" {
		m.ticks.WithLabelValues(string(action)).Inc()
	}
	if reading != nil {
		m.temperature.Set(reading.TempC)
		m.readingAge.Set(reading.Age(now).Seconds())
	}
	m.outage.Set(outage.Seconds())
	if fetchFailed {
		m.fetchFailures.Inc()
	}
}

// ObserveCommand records a device command outcome.
func (m *Metrics) ObserveCommand(on bool, err error, consecutiveFailures int) {
	state := "off"
	if on {
		state = "on"
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.commandFailures.Inc()
	} else if on {
		m.powerOn.Set(1)
	} else {
		m.powerOn.Set(0)
	}
	m.commands.WithLabelValues(state, result).Inc()
	m.consecutiveFailures.Set(float64(consecutiveFailures))
}

// ObserveAttempt counts one attempt of a retried call.
func (m *Metrics) ObserveAttempt(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.attempts.WithLabelValues(op, outcome).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
