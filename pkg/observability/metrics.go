// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the workflow engine.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	// Task lifecycle metrics
	tasksCreated     *prometheus.CounterVec
	taskStateGauge   *prometheus.GaugeVec
	taskTransitions  *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	taskApprovalWait *prometheus.HistogramVec

	// Stage execution metrics
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec

	// Dispatcher metrics
	dispatcherQueueDepth *prometheus.GaugeVec
	dispatcherRetries    *prometheus.CounterVec
	dispatcherFailures   *prometheus.CounterVec

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance from configuration.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cfg.SetDefaults()

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	m.initTaskMetrics()
	m.initStageMetrics()
	m.initDispatcherMetrics()
	m.initHTTPMetrics()

	return m, nil
}

func (m *Metrics) initTaskMetrics() {
	m.tasksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "task",
			Name:      "created_total",
			Help:      "Total number of tasks created",
		},
		nil,
	)

	m.taskStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "task",
			Name:      "state",
			Help:      "Number of tasks currently in each lifecycle state",
		},
		[]string{"state"},
	)

	m.taskTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "task",
			Name:      "transitions_total",
			Help:      "Total number of task state transitions",
		},
		[]string{"from", "to"},
	)

	m.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "Total wall-clock time from task creation to a terminal state",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2.3h
		},
		[]string{"outcome"},
	)

	m.taskApprovalWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "task",
			Name:      "approval_wait_seconds",
			Help:      "Time a task spends in AwaitingApproval before resume or rejection",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"outcome"},
	)

	m.registry.MustRegister(m.tasksCreated, m.taskStateGauge, m.taskTransitions, m.taskDuration, m.taskApprovalWait)
}

func (m *Metrics) initStageMetrics() {
	m.stageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "stage",
			Name:      "runs_total",
			Help:      "Total number of stage executions",
		},
		[]string{"stage"},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Stage execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to 204s
		},
		[]string{"stage"},
	)

	m.stageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "stage",
			Name:      "errors_total",
			Help:      "Total number of stage execution errors",
		},
		[]string{"stage"},
	)

	m.registry.MustRegister(m.stageRuns, m.stageDuration, m.stageErrors)
}

func (m *Metrics) initDispatcherMetrics() {
	m.dispatcherQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "dispatcher",
			Name:      "queue_depth",
			Help:      "Number of commands queued per worker",
		},
		[]string{"worker"},
	)

	m.dispatcherRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "dispatcher",
			Name:      "retries_total",
			Help:      "Total number of dispatcher retry attempts",
		},
		nil,
	)

	m.dispatcherFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "dispatcher",
			Name:      "failures_total",
			Help:      "Total number of tasks that exhausted retries and were marked Failed",
		},
		nil,
	)

	m.registry.MustRegister(m.dispatcherQueueDepth, m.dispatcherRetries, m.dispatcherFailures)
}

func (m *Metrics) initHTTPMetrics() {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.registry.MustRegister(m.httpRequests, m.httpDuration)
}

// =============================================================================
// Task Metrics
// =============================================================================

// RecordTaskCreated records a new task being created.
func (m *Metrics) RecordTaskCreated() {
	if m == nil {
		return
	}
	m.tasksCreated.WithLabelValues().Inc()
}

// SetTaskStateCount sets the gauge of tasks currently in a given state.
func (m *Metrics) SetTaskStateCount(state string, count int) {
	if m == nil {
		return
	}
	m.taskStateGauge.WithLabelValues(state).Set(float64(count))
}

// RecordTaskTransition records a state transition.
func (m *Metrics) RecordTaskTransition(from, to string) {
	if m == nil {
		return
	}
	m.taskTransitions.WithLabelValues(from, to).Inc()
}

// RecordTaskDuration records the total time a task took to reach a terminal state.
func (m *Metrics) RecordTaskDuration(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordTaskApprovalWait records how long a task waited in AwaitingApproval.
func (m *Metrics) RecordTaskApprovalWait(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskApprovalWait.WithLabelValues(outcome).Observe(duration.Seconds())
}

// =============================================================================
// Stage Metrics
// =============================================================================

// RecordStageRun records a stage execution.
func (m *Metrics) RecordStageRun(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordStageError records a stage execution error.
func (m *Metrics) RecordStageError(stage string) {
	if m == nil {
		return
	}
	m.stageErrors.WithLabelValues(stage).Inc()
}

// =============================================================================
// Dispatcher Metrics
// =============================================================================

// SetDispatcherQueueDepth reports the current queue depth for a worker.
func (m *Metrics) SetDispatcherQueueDepth(worker string, depth int) {
	if m == nil {
		return
	}
	m.dispatcherQueueDepth.WithLabelValues(worker).Set(float64(depth))
}

// RecordDispatcherRetry records a retry attempt.
func (m *Metrics) RecordDispatcherRetry() {
	if m == nil {
		return
	}
	m.dispatcherRetries.WithLabelValues().Inc()
}

// RecordDispatcherFailure records a task exhausting its retries.
func (m *Metrics) RecordDispatcherFailure() {
	if m == nil {
		return
	}
	m.dispatcherFailures.WithLabelValues().Inc()
}

// =============================================================================
// HTTP Metrics
// =============================================================================

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	status := statusCodeLabel(statusCode)
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// statusCodeLabel converts a status code to a label string.
func statusCodeLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// =============================================================================
// HTTP Handler
// =============================================================================

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
