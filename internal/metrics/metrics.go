// ABOUTME: Prometheus metrics for the cue engine
// ABOUTME: Counters for dispatch outcomes plus playback gauges
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors behind a private
// registry so tests can create them freely.
type Metrics struct {
	registry          *prometheus.Registry
	cuesDispatched    prometheus.Counter
	dispatchErrors    prometheus.Counter
	dispatchRetries   prometheus.Counter
	showsLoaded       prometheus.Counter
	playbackPosition  prometheus.Gauge
	devicesConfigured prometheus.Gauge
}

// New creates and registers the engine metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	cuesDispatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "openlights_cues_dispatched_total",
		Help: "Total number of cue commands delivered to a backend",
	})
	dispatchErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "openlights_dispatch_errors_total",
		Help: "Total number of cue dispatches that failed after all attempts",
	})
	dispatchRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "openlights_dispatch_retries_total",
		Help: "Total number of backend call retries",
	})
	showsLoaded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "openlights_shows_loaded_total",
		Help: "Total number of beat files successfully loaded",
	})
	playbackPosition := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "openlights_playback_position_seconds",
		Help: "Current playback position of the active show",
	})
	devicesConfigured := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "openlights_devices_configured",
		Help: "Number of devices in the active registry",
	})

	registry.MustRegister(
		cuesDispatched,
		dispatchErrors,
		dispatchRetries,
		showsLoaded,
		playbackPosition,
		devicesConfigured,
	)

	return &Metrics{
		registry:          registry,
		cuesDispatched:    cuesDispatched,
		dispatchErrors:    dispatchErrors,
		dispatchRetries:   dispatchRetries,
		showsLoaded:       showsLoaded,
		playbackPosition:  playbackPosition,
		devicesConfigured: devicesConfigured,
	}
}

// IncCuesDispatched counts one successful backend delivery.
func (m *Metrics) IncCuesDispatched() { m.cuesDispatched.Inc() }

// IncDispatchErrors counts one retry-exhausted or unresolvable dispatch.
func (m *Metrics) IncDispatchErrors() { m.dispatchErrors.Inc() }

// IncDispatchRetries counts one backend call retry.
func (m *Metrics) IncDispatchRetries() { m.dispatchRetries.Inc() }

// IncShowsLoaded counts one successfully parsed show.
func (m *Metrics) IncShowsLoaded() { m.showsLoaded.Inc() }

// SetPlaybackPosition updates the playback position gauge.
func (m *Metrics) SetPlaybackPosition(seconds float64) { m.playbackPosition.Set(seconds) }

// SetDevicesConfigured updates the registry size gauge.
func (m *Metrics) SetDevicesConfigured(n int) { m.devicesConfigured.Set(float64(n)) }

// Handler returns an http.Handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
