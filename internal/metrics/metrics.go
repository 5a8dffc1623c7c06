package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WatchdogTicksTotal tracks watchdog ticks by outcome
	WatchdogTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_watchdog_ticks_total",
			Help: "Total number of watchdog ticks",
		},
		[]string{"watchdog", "result"}, // not_ready, error, ready
	)

	// WatchdogConfirmationsTotal tracks WAITING -> CONFIRMED transitions
	WatchdogConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_watchdog_confirmations_total",
			Help: "Total number of watchdog confirmations",
		},
		[]string{"watchdog"},
	)

	// WatchdogState tracks the current state of each watchdog (0 = waiting, 1 = confirmed)
	WatchdogState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "webui_watchdog_state",
			Help: "Current watchdog state (0 = waiting, 1 = confirmed)",
		},
		[]string{"watchdog"},
	)

	// CheckDuration tracks readiness check duration
	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webui_watchdog_check_duration_seconds",
			Help:    "Duration of watchdog readiness checks",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"watchdog"},
	)

	// ActionErrorsTotal tracks failed post-confirmation actions
	ActionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_watchdog_action_errors_total",
			Help: "Total number of failed post-confirmation actions",
		},
		[]string{"watchdog"},
	)

	// APIRequestDuration tracks web UI API request duration
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webui_watchdog_api_request_duration_seconds",
			Help:    "Duration of web UI API requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// APIErrorsTotal tracks API errors
	APIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_watchdog_api_errors_total",
			Help: "Total number of web UI API errors",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// ResumesTotal tracks in-flight tasks resumed after reconnect
	ResumesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_watchdog_resumes_total",
			Help: "Total number of reconnects by resume outcome",
		},
		[]string{"result"}, // resumed, nothing, error
	)

	// ProgressUpdatesTotal tracks progress updates published
	ProgressUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webui_watchdog_progress_updates_total",
			Help: "Total number of task progress updates published",
		},
	)

	// TasksTracked tracks the number of tasks currently tracked (0 or 1)
	TasksTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webui_watchdog_tasks_tracked",
			Help: "Number of tasks whose progress is currently tracked",
		},
	)

	// LoadingIndicatorsHidden tracks ETA indicators hidden after their time box
	LoadingIndicatorsHidden = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webui_watchdog_loading_indicators_hidden_total",
			Help: "Total number of ETA indicators hidden after exceeding their time box",
		},
	)

	// WebSocketClients tracks connected browser clients
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webui_watchdog_websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)

	// Reloads tracks reloads forced after a server restart
	Reloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webui_watchdog_reloads_total",
			Help: "Total number of reloads forced after a server restart",
		},
	)

	// HealthStatus follows readiness. It stays 0 until the UI is confirmed.
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webui_watchdog_healthy",
			Help: "Health status of the watchdog daemon (1 = UI confirmed, 0 = waiting or failed)",
		},
	)
)
