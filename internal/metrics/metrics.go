// Package metrics exposes Prometheus collectors for the bridge service.
package metrics

import (
	"bufio"
	"errors"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zkbridge"

// Metrics holds every collector registered for one service instance. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operations       *prometheus.CounterVec
	custody          prometheus.Gauge
	transferFailures *prometheus.CounterVec
	eventFailures    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	chainValid       prometheus.Gauge
	pendingPayouts   *prometheus.GaugeVec
	jobRuns          *prometheus.CounterVec
}

// New registers the collectors on reg. Passing a fresh registry per instance
// keeps tests free of duplicate registration panics.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger and relay operations by result",
		}, []string{"operation", "result"}),
		custody: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "custody_total",
			Help:      "Currently custodied value in smallest units",
		}),
		transferFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transfer_failures_total",
			Help:      "Disbursements that failed after the debit was committed",
		}, []string{"operation"}),
		eventFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Events that could not be delivered to a sink",
		}, []string{"sink"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route", "status"}),
		chainValid: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "chain_valid",
			Help:      "1 when the last audit chain verification passed",
		}),
		pendingPayouts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "payouts",
			Name:      "pending",
			Help:      "Payouts queued for the external signer",
		}, []string{"outbox"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by result",
		}, []string{"job", "result"}),
	}
}

// ObserveOperation counts one operation outcome.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// SetCustody publishes the current custodied total. Values beyond float64
// precision are approximated.
func (m *Metrics) SetCustody(total *uint256.Int) {
	if m == nil || total == nil {
		return
	}
	f, _ := new(big.Float).SetInt(total.ToBig()).Float64()
	m.custody.Set(f)
}

func (m *Metrics) TransferFailed(op string) {
	if m == nil {
		return
	}
	m.transferFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) EventFailed(sink string) {
	if m == nil {
		return
	}
	m.eventFailures.WithLabelValues(sink).Inc()
}

// SetChainValid records the outcome of an audit chain verification.
func (m *Metrics) SetChainValid(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.chainValid.Set(1)
		return
	}
	m.chainValid.Set(0)
}

// SetPendingPayouts records the backlog of one payout outbox.
func (m *Metrics) SetPendingPayouts(outbox string, n int) {
	if m == nil {
		return
	}
	m.pendingPayouts.WithLabelValues(outbox).Set(float64(n))
}

// ObserveJob counts one scheduled job run.
func (m *Metrics) ObserveJob(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled by the matched route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
