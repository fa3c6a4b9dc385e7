// Package metrics exposes Prometheus collectors for the booking engine and
// the admin HTTP endpoints that serve them.
package metrics

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

type Collector struct {
	Registry *prometheus.Registry

	RPCRequestsTotal *prometheus.CounterVec
	RPCDuration      *prometheus.HistogramVec

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	RefundsTotal      prometheus.Counter
	RefundedAmount    prometheus.Counter

	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	OutboxPublishedTotal prometheus.Counter
	OutboxFailuresTotal  *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		Registry: reg,

		RPCRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Total unary RPCs by method and status code.",
		}, []string{"method", "code"}),

		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "Unary RPC latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method"}),

		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "operations_total",
			Help:      "Booking and lifecycle operations by outcome.",
		}, []string{"operation", "outcome"}),

		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "operation_duration_seconds",
			Help:      "Booking and lifecycle operation latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"operation"}),

		RefundsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "refunds_total",
			Help:      "Cancellations that produced a non-zero refund.",
		}),

		RefundedAmount: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "refunded_minor_units_total",
			Help:      "Sum of refund amounts in minor currency units.",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency distribution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"operation"}),

		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Failed database queries. sql.ErrNoRows is not counted.",
		}, []string{"operation"}),

		OutboxPublishedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events written to Kafka.",
		}),

		OutboxFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "failures_total",
			Help:      "Failed outbox relay attempts by reason.",
		}, []string{"reason"}),
	}
}

func (c *Collector) Operation(op string, outcome string, elapsed time.Duration) {
	c.OperationsTotal.WithLabelValues(op, outcome).Inc()
	c.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (c *Collector) Refund(amount int64) {
	if amount <= 0 {
		return
	}
	c.RefundsTotal.Inc()
	c.RefundedAmount.Add(float64(amount))
}

// ObserveQuery matches postgres.QueryObserver.
func (c *Collector) ObserveQuery(operation string, elapsed time.Duration, err error) {
	c.DBQueryDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		c.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

func (c *Collector) OutboxPublished(n int) {
	c.OutboxPublishedTotal.Add(float64(n))
}

func (c *Collector) OutboxFailed(reason string) {
	c.OutboxFailuresTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		c.RPCRequestsTotal.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		c.RPCDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		return resp, err
	}
}
