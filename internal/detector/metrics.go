package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "glens_detector_inference_duration_seconds",
		Help:    "Time spent in object detection inference",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	detectionsReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "glens_detector_detections",
		Help:    "Number of boxes returned per detection call",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 300},
	})
)
