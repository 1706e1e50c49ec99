// Package metrics exposes Prometheus metrics for the viewer service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version string
}

type Provider struct {
	reg *prometheus.Registry

	Clicks         *prometheus.CounterVec
	Emphasis       *prometheus.CounterVec
	Toggles        *prometheus.CounterVec
	Reloads        *prometheus.CounterVec
	SessionsOpen   prometheus.Counter
	FeaturesLoaded prometheus.Gauge
}

// Init creates a registry with the Go and process collectors, build info
// and the interaction counters.
func Init(build BuildInfo) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poi_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version"},
	)
	if build.Version == "" {
		build.Version = "dev"
	}
	info.WithLabelValues(build.Version).Set(1)

	p := &Provider{
		reg: reg,
		Clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poi_clicks_total",
			Help: "Feature clicks by outcome (details, dropped).",
		}, []string{"outcome"}),
		Emphasis: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poi_emphasis_commands_total",
			Help: "Hover emphasis commands sent to viewers, by kind (set, unset).",
		}, []string{"kind"}),
		Toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poi_filter_toggles_total",
			Help: "Filter toggles by result (selected, deselected, invalid).",
		}, []string{"result"}),
		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poi_dataset_reloads_total",
			Help: "Dataset reloads by outcome (ok, error).",
		}, []string{"outcome"}),
		SessionsOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poi_sessions_opened_total",
			Help: "Viewer sessions opened.",
		}),
		FeaturesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poi_features_loaded",
			Help: "Detail records currently loaded.",
		}),
	}
	reg.MustRegister(info, p.Clicks, p.Emphasis, p.Toggles, p.Reloads, p.SessionsOpen, p.FeaturesLoaded)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// Gauge registers a gauge whose value is read from fn at scrape time.
func (p *Provider) Gauge(name, help string, fn func() float64) {
	p.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}
