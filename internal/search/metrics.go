package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glens_search_pages_total",
		Help: "Result pages received from the search provider",
	})

	pageFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glens_search_page_failures_total",
		Help: "Next-page requests that failed and ended pagination early",
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glens_search_cache_lookups_total",
		Help: "Search cache lookups by result",
	}, []string{"result"})

	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "glens_search_duration_seconds",
		Help:    "End-to-end search duration",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"source"})
)
