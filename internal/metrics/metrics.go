// Package metrics provides Prometheus metrics for VSPilot monitoring.
// Exports scheduler, build orchestration, and AI routing metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors for VSPilot.
type Metrics struct {
	// Scheduler
	TasksQueued    *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksCancelled prometheus.Counter
	TasksFailed    prometheus.Counter
	QueueDepth     *prometheus.GaugeVec

	// Build orchestration
	BuildsTotal       *prometheus.CounterVec
	BuildDuration     prometheus.Histogram
	RepairAttempts    prometheus.Counter
	RepairLoopResults *prometheus.CounterVec

	// AI routing
	AIRequestsTotal  *prometheus.CounterVec
	AIRequestSeconds *prometheus.HistogramVec
	AITokensUsed     *prometheus.CounterVec
	AIFallbacksTotal *prometheus.CounterVec
	AnalysisQueueLen prometheus.Gauge
}

// Get returns the singleton metrics instance, registering collectors on
// first use.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			TasksQueued: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vspilot_tasks_queued_total",
				Help: "Automation tasks enqueued, by priority",
			}, []string{"priority"}),
			TasksCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vspilot_tasks_completed_total",
				Help: "Automation tasks completed, by priority",
			}, []string{"priority"}),
			TasksCancelled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vspilot_tasks_cancelled_total",
				Help: "Automation tasks cancelled before or during execution",
			}),
			TasksFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vspilot_tasks_failed_total",
				Help: "Automation tasks that returned an error",
			}),
			QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "vspilot_queue_depth",
				Help: "Entries waiting in each priority lane",
			}, []string{"priority"}),

			BuildsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vspilot_builds_total",
				Help: "Build cycles by outcome (succeeded, failed, cancelled)",
			}, []string{"outcome"}),
			BuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "vspilot_build_duration_seconds",
				Help:    "Wall-clock duration of build cycles",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			}),
			RepairAttempts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "vspilot_repair_attempts_total",
				Help: "AI-assisted repair iterations performed",
			}),
			RepairLoopResults: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vspilot_repair_loops_total",
				Help: "Repair loop terminations by result (recovered, exhausted)",
			}, []string{"result"}),

			AIRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vspilot_ai_requests_total",
				Help: "AI provider calls by provider and status",
			}, []string{"provider", "status"}),
			AIRequestSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "vspilot_ai_request_duration_seconds",
				Help:    "Latency of AI provider calls",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			}, []string{"provider"}),
			AITokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vspilot_ai_tokens_total",
				Help: "Tokens consumed per provider and direction",
			}, []string{"provider", "direction"}),
			AIFallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "vspilot_ai_fallbacks_total",
				Help: "Provider substitutions made at selection time",
			}, []string{"from", "to"}),
			AnalysisQueueLen: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "vspilot_analysis_queue_length",
				Help: "Pending entries in the background analysis queue",
			}),
		}
	})
	return instance
}
