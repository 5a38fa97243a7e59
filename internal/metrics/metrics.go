// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SalesCompleted   *prometheus.CounterVec
	SalesCanceled    prometheus.Counter
	SaleAmount       *prometheus.CounterVec
	Transfers        *prometheus.CounterVec
	ClampedDecrement *prometheus.CounterVec
	StockReceived    prometheus.Counter
	LoginAttempts    *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New builds a private registry so tests can create as many instances as
// they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SalesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tirepos",
			Name:      "sales_completed_total",
			Help:      "Completed sales by payment method.",
		}, []string{"payment_method"}),
		SalesCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tirepos",
			Name:      "sales_canceled_total",
			Help:      "Canceled sales.",
		}),
		SaleAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tirepos",
			Name:      "sale_amount_won_total",
			Help:      "Revenue booked by payment method, in won.",
		}, []string{"payment_method"}),
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tirepos",
			Name:      "stock_transfers_total",
			Help:      "Stock transfer attempts by result.",
		}, []string{"result"}),
		ClampedDecrement: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tirepos",
			Name:      "stock_clamped_decrements_total",
			Help:      "Sale decrements that hit zero before the requested quantity.",
		}, []string{"store_id"}),
		StockReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tirepos",
			Name:      "stock_received_units_total",
			Help:      "Units booked in through stock-in receipts.",
		}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tirepos",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tirepos",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tirepos",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SalesCompleted,
		m.SalesCanceled,
		m.SaleAmount,
		m.Transfers,
		m.ClampedDecrement,
		m.StockReceived,
		m.LoginAttempts,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
