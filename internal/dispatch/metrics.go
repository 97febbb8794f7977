package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_runs_total",
		Help: "Number of dispatcher sweeps.",
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatcher_batch_size",
		Help:    "Due reminders picked up per sweep.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200},
	})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_deliveries_total",
		Help: "Delivery attempts by channel and outcome.",
	}, []string{"channel", "status"})

	remindersDisabled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_reminders_disabled_total",
		Help: "Reminders auto-disabled after their final occurrence.",
	})
)
