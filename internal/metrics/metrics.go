// Package metrics records service metrics on a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label keys.
const (
	LabelMethod  = "method"
	LabelRoute   = "route"
	LabelStatus  = "status"
	LabelOutcome = "outcome"
	LabelOp      = "op"
	LabelResult  = "result"
)

// Recorder owns the collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	playerImports *prometheus.CounterVec
	teamChanges   *prometheus.CounterVec
	liveClients   prometheus.Gauge
}

// New registers the spiritx collectors plus the Go and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spiritx_http_requests_total",
			Help: "HTTP requests served, by method, route pattern and status.",
		}, []string{LabelMethod, LabelRoute, LabelStatus}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spiritx_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{LabelMethod, LabelRoute}),
		playerImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spiritx_player_imports_total",
			Help: "CSV import rows, by outcome.",
		}, []string{LabelOutcome}),
		teamChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spiritx_team_changes_total",
			Help: "Team add and remove attempts, by result.",
		}, []string{LabelOp, LabelResult}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spiritx_live_clients",
			Help: "Connected live update clients.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpDuration,
		r.playerImports,
		r.teamChanges,
		r.liveClients,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordHTTPRequest counts one served request. route is the router pattern,
// not the raw path, to keep label cardinality bounded.
func (r *Recorder) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ImportCounts is the tally of one CSV import.
type ImportCounts struct {
	Added, Updated, Skipped, Failed int
}

// RecordImport adds an import's tallies.
func (r *Recorder) RecordImport(c ImportCounts) {
	if r == nil {
		return
	}
	r.playerImports.WithLabelValues("added").Add(float64(c.Added))
	r.playerImports.WithLabelValues("updated").Add(float64(c.Updated))
	r.playerImports.WithLabelValues("skipped").Add(float64(c.Skipped))
	r.playerImports.WithLabelValues("failed").Add(float64(c.Failed))
}

// RecordTeamChange counts a team add or remove. result is "ok" or a short
// reason such as "team_full".
func (r *Recorder) RecordTeamChange(op, result string) {
	if r == nil {
		return
	}
	r.teamChanges.WithLabelValues(op, result).Inc()
}

// SetLiveClients sets the connected live client gauge.
func (r *Recorder) SetLiveClients(n int) {
	if r == nil {
		return
	}
	r.liveClients.Set(float64(n))
}
