// Package metrics exposes the Prometheus collectors for the sales pipeline.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	holdAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketflow_hold_attempts_total",
			Help: "Seat hold requests by result",
		},
		[]string{"result"},
	)

	seatsSelfHealed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketflow_seats_self_healed_total",
			Help: "Stale RESERVED seats returned to AVAILABLE",
		},
	)

	purchaseAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketflow_purchase_attempts_total",
			Help: "Purchase initiations by result",
		},
		[]string{"result"},
	)

	processorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketflow_processor_request_seconds",
			Help:    "Latency of payment processor calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	finalizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketflow_finalizations_total",
			Help: "Payment confirmations by result",
		},
		[]string{"result"},
	)

	finalizationAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketflow_finalization_anomalies_total",
			Help: "Finalization anomalies needing reconciliation",
		},
		[]string{"kind"},
	)

	refunds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketflow_refunds_total",
			Help: "Refund outcomes by status",
		},
		[]string{"status"},
	)

	checkIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketflow_check_ins_total",
			Help: "Check-in scans by outcome",
		},
		[]string{"outcome"},
	)

	jobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketflow_job_runs_total",
			Help: "Background job passes by job and result",
		},
		[]string{"job", "result"},
	)
)

func HoldAttempt(result string)     { holdAttempts.WithLabelValues(result).Inc() }
func SeatSelfHealed()               { seatsSelfHealed.Inc() }
func PurchaseAttempt(result string) { purchaseAttempts.WithLabelValues(result).Inc() }
func Finalization(result string)    { finalizations.WithLabelValues(result).Inc() }
func Anomaly(kind string)           { finalizationAnomalies.WithLabelValues(kind).Inc() }
func Refund(status string)          { refunds.WithLabelValues(status).Inc() }
func CheckIn(outcome string)        { checkIns.WithLabelValues(outcome).Inc() }
func JobRun(job, result string)     { jobRuns.WithLabelValues(job, result).Inc() }

func ProcessorCall(operation, result string, seconds float64) {
	processorLatency.WithLabelValues(operation, result).Observe(seconds)
}

// Handler serves the default registry
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
