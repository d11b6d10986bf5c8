package tempfile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var activeFiles = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "glens_temp_files_active",
		Help: "Number of request-scoped temporary files currently on disk",
	},
)
