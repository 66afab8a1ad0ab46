// Package metrics exposes Prometheus metrics fed from pipeline events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
)

const namespace = "gqlhttp"

// Outcome labels for graphql_operations_total.
const (
	outcomeOK      = "ok"
	outcomePartial = "partial"
	outcomeError   = "error"
)

// Metrics holds the collectors registered by Register.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	OperationsTotal     *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	BodyErrorsTotal     *prometheus.CounterVec
}

// Register creates the collectors on reg and feeds them from bus.
func Register(bus *eventbus.Bus, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graphql_operations_total",
				Help:      "Total number of executed GraphQL operations",
			},
			[]string{"type", "outcome"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graphql_operation_duration_seconds",
				Help:      "GraphQL execution latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		BodyErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "body_parse_errors_total",
				Help:      "Request bodies that could not be turned into a GraphQL payload",
			},
			[]string{"content_type"},
		),
	}

	eventbus.Subscribe(bus, func(_ context.Context, e events.HTTPFinish) {
		m.HTTPRequestsTotal.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
	})
	eventbus.Subscribe(bus, func(_ context.Context, e events.GraphQLFinish) {
		m.OperationsTotal.WithLabelValues(e.OperationType, outcome(e)).Inc()
		m.OperationDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
	})
	eventbus.Subscribe(bus, func(_ context.Context, e events.BodyResolved) {
		if e.Err != nil {
			m.BodyErrorsTotal.WithLabelValues(e.ContentType).Inc()
		}
	})
	return m
}

func outcome(e events.GraphQLFinish) string {
	switch {
	case e.Status >= http.StatusBadRequest:
		return outcomeError
	case len(e.Errors) > 0:
		return outcomePartial
	default:
		return outcomeOK
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
