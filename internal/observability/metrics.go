package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runtracker_sessions_started_total",
		Help: "Tracking sessions that entered the active state",
	})
	SessionsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runtracker_sessions_stopped_total",
		Help: "Tracking sessions finalized into a record",
	})
	PermissionDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runtracker_permission_denied_total",
		Help: "Start attempts refused by the location source",
	})
	PositionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runtracker_positions_accepted_total",
		Help: "Position samples appended to an active path",
	})
	PositionsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runtracker_positions_ignored_total",
		Help: "Position samples dropped, by reason",
	}, []string{"reason"})
	Ticks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runtracker_ticks_total",
		Help: "Timer ticks counted into session durations",
	})
	RecordDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "runtracker_record_distance_meters",
		Help:    "Distance of finalized records",
		Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 21097, 42195, 100000},
	})
	JournalSaveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runtracker_journal_save_errors_total",
		Help: "Failed whole-collection journal writes",
	})
)

// MetricsHandler exposes the default registry on a fiber route.
func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
