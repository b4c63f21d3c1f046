package retention

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "historian_retention_runs_total",
		Help: "Cumulative number of retention runs by result.",
	}, []string{"result"})
	purgedRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "historian_retention_purged_rows_total",
		Help: "Cumulative number of rows removed by retention, by kind.",
	}, []string{"kind"})
	lastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "historian_retention_last_run_timestamp_seconds",
		Help: "Unix time of the last successful retention run.",
	})
)
