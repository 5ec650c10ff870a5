// Package observability exposes Prometheus metrics for the intake daemon.
// Metrics register lazily on first use so tests and library callers never
// pay for them unless something records.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	eventsTotal         *prometheus.CounterVec
	eventsRejectedTotal *prometheus.CounterVec
	eventDuration       prometheus.Histogram

	attachmentsBufferedTotal  prometheus.Counter
	attachmentsExpiredTotal   prometheus.Counter
	attachmentsDiscardedTotal prometheus.Counter
	mediaFetchErrorsTotal     prometheus.Counter

	dispatchesTotal *prometheus.CounterVec

	activeSessions       prometheus.Gauge
	sessionsEvictedTotal prometheus.Counter

	notificationsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			eventsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "intake_events_total",
					Help: "Total inbound events by kind.",
				},
				[]string{"kind"},
			),
			eventsRejectedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "intake_events_rejected_total",
					Help: "Total inbound events rejected before correlation, by reason.",
				},
				[]string{"reason"},
			),
			eventDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "intake_event_duration_seconds",
					Help:    "End-to-end correlation handling duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			attachmentsBufferedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "intake_attachments_buffered_total",
					Help: "Total attachments buffered awaiting a customer name.",
				},
			),
			attachmentsExpiredTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "intake_attachments_expired_total",
					Help: "Total buffered attachments dropped after aging past the correlation window.",
				},
			),
			attachmentsDiscardedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "intake_attachments_discarded_total",
					Help: "Total buffered attachments superseded by a combined name+media event.",
				},
			),
			mediaFetchErrorsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "intake_media_fetch_errors_total",
					Help: "Total media downloads that failed or timed out.",
				},
			),
			dispatchesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "intake_dispatches_total",
					Help: "Total order intake units dispatched, by pipeline outcome.",
				},
				[]string{"status"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "intake_active_sessions",
					Help: "Current live session count.",
				},
			),
			sessionsEvictedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "intake_sessions_evicted_total",
					Help: "Total sessions evicted by the janitor.",
				},
			),
			notificationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "intake_notifications_total",
					Help: "Total outbound notifications by kind.",
				},
				[]string{"kind"},
			),
		}

		prometheus.MustRegister(
			m.eventsTotal,
			m.eventsRejectedTotal,
			m.eventDuration,
			m.attachmentsBufferedTotal,
			m.attachmentsExpiredTotal,
			m.attachmentsDiscardedTotal,
			m.mediaFetchErrorsTotal,
			m.dispatchesTotal,
			m.activeSessions,
			m.sessionsEvictedTotal,
			m.notificationsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordEvent(kind string) {
	getMetrics().eventsTotal.WithLabelValues(kind).Inc()
}

func RecordEventRejected(reason string) {
	getMetrics().eventsRejectedTotal.WithLabelValues(reason).Inc()
}

func RecordEventDuration(duration time.Duration) {
	getMetrics().eventDuration.Observe(duration.Seconds())
}

func RecordAttachmentsBuffered(count int) {
	getMetrics().attachmentsBufferedTotal.Add(float64(count))
}

func RecordAttachmentsExpired(count int) {
	getMetrics().attachmentsExpiredTotal.Add(float64(count))
}

func RecordAttachmentsDiscarded(count int) {
	getMetrics().attachmentsDiscardedTotal.Add(float64(count))
}

func RecordMediaFetchError() {
	getMetrics().mediaFetchErrorsTotal.Inc()
}

func RecordDispatch(success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().dispatchesTotal.WithLabelValues(status).Inc()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionsEvicted(count int) {
	getMetrics().sessionsEvictedTotal.Add(float64(count))
}

func RecordNotification(kind string) {
	getMetrics().notificationsTotal.WithLabelValues(kind).Inc()
}
