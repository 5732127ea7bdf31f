package player

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the player's Prometheus collectors.
type Metrics struct {
	Requests     *prometheus.CounterVec
	ImagesServed *prometheus.CounterVec
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifelapse_player_requests_total",
				Help: "Total HTTP requests handled by the frame player",
			},
			[]string{"route", "status"},
		),
		ImagesServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifelapse_player_images_served_total",
				Help: "Images served by source root",
			},
			[]string{"root"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lifelapse_player_frame_cache_hits_total",
				Help: "Frame listing cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lifelapse_player_frame_cache_misses_total",
				Help: "Frame listing cache misses",
			},
		),
	}
	reg.MustRegister(m.Requests, m.ImagesServed, m.CacheHits, m.CacheMisses)
	return m
}
