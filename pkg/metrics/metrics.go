package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)

	// Record store metrics
	StoreReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_reads_total",
			Help: "Collection reads by key and outcome",
		},
		[]string{"key", "outcome"}, // ok, missing, malformed, error
	)

	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_writes_total",
			Help: "Full-collection writes by key and outcome",
		},
		[]string{"key", "outcome"}, // ok, error, conflict
	)

	StoreWriteBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "store_write_bytes",
			Help:    "Size of serialized values written to the backend",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
	)

	BackendOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_backend_operation_duration_seconds",
			Help:    "Backend operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .5},
		},
		[]string{"backend", "operation", "status"},
	)

	// Change notification metrics
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_broadcasts_total",
			Help: "Change signals delivered to listeners, by source",
		},
		[]string{"source"}, // local, remote
	)

	ListenersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_listeners_active",
			Help: "Current number of subscribed change listeners",
		},
	)

	StreamConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "change_stream_connections_active",
			Help: "Open SSE/WebSocket change streams",
		},
		[]string{"transport"},
	)

	// Poller metrics
	PollTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_ticks_total",
			Help: "Poller read-path executions",
		},
		[]string{"poller", "status"},
	)

	PollersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pollers_active",
			Help: "Currently running pollers",
		},
	)

	// Dashboard snapshot, refreshed by the admin poller
	DashboardUsers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashboard_users",
			Help: "Registered users by block state",
		},
		[]string{"state"}, // active, blocked
	)

	DashboardTicketsAwaitingReply = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_tickets_awaiting_reply",
			Help: "Tickets whose newest message came from the user",
		},
	)

	SessionUnread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_unread_reply",
			Help: "1 when the signed-in user has an unread admin reply",
		},
	)

	// Authentication Metrics
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"status"}, // success, not_found, wrong_password, blocked
	)

	RegistrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registrations_total",
			Help: "Total number of user registrations",
		},
	)

	ForcedLogoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_forced_logouts_total",
			Help: "Sessions cleared because the user was blocked or removed",
		},
	)

	// Support ticket metrics
	TicketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_messages_total",
			Help: "Support messages appended, by sender",
		},
		[]string{"sender"},
	)

	ArchiveEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_archive_events_total",
			Help: "Ticket archive deliveries by outcome",
		},
		[]string{"outcome"},
	)

	// Points
	PointsAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_awarded_total",
			Help: "Sum of point deltas applied, by reason",
		},
		[]string{"reason"},
	)

	AssistantCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_calls_total",
			Help: "Tutoring assistant invocations",
		},
		[]string{"operation", "status"},
	)

	// Circuit breakers
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "0=closed 1=half-open 2=open",
		},
		[]string{"name"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type", "code"},
	)
)

func RecordStoreRead(key, outcome string) {
	StoreReadsTotal.WithLabelValues(keyLabel(key), outcome).Inc()
}

func RecordStoreWrite(key, outcome string, size int) {
	StoreWritesTotal.WithLabelValues(keyLabel(key), outcome).Inc()
	if outcome == "ok" {
		StoreWriteBytes.Observe(float64(size))
	}
}

func RecordBackendOperation(backend, operation string, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	BackendOperationDuration.WithLabelValues(backend, operation, status).Observe(seconds)
}

func RecordBroadcast(source string) {
	BroadcastsTotal.WithLabelValues(source).Inc()
}

func RecordPollTick(name string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	PollTicksTotal.WithLabelValues(name, status).Inc()
}

func SetDashboardStats(active, blocked, awaitingReply int) {
	DashboardUsers.WithLabelValues("active").Set(float64(active))
	DashboardUsers.WithLabelValues("blocked").Set(float64(blocked))
	DashboardTicketsAwaitingReply.Set(float64(awaitingReply))
}

func SetSessionUnread(unread bool) {
	if unread {
		SessionUnread.Set(1)
		return
	}
	SessionUnread.Set(0)
}

func RecordLoginAttempt(status string) {
	LoginAttemptsTotal.WithLabelValues(status).Inc()
}

func IncrementRegistrations() {
	RegistrationsTotal.Inc()
}

func IncrementForcedLogouts() {
	ForcedLogoutsTotal.Inc()
}

func RecordTicketMessage(sender string) {
	TicketMessagesTotal.WithLabelValues(sender).Inc()
}

func RecordArchiveEvent(outcome string) {
	ArchiveEventsTotal.WithLabelValues(outcome).Inc()
}

func RecordPoints(reason string, amount int) {
	// Counters cannot go down; negative adjustments are tracked separately
	if amount < 0 {
		PointsAwardedTotal.WithLabelValues(reason + "_negative").Add(float64(-amount))
		return
	}
	PointsAwardedTotal.WithLabelValues(reason).Add(float64(amount))
}

func RecordAssistantCall(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	AssistantCallsTotal.WithLabelValues(operation, status).Inc()
}

func SetBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}

func RecordError(errorType, errorCode string) {
	ErrorsTotal.WithLabelValues(errorType, errorCode).Inc()
}

// keyLabel folds per-user keys into one label value to bound cardinality
func keyLabel(key string) string {
	for _, prefix := range []string{"support_", "readCount_"} {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			return prefix + "*"
		}
	}
	return key
}
