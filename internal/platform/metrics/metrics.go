// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metrics exposes Prometheus instrumentation for the API.

All recorder methods are safe to call on a nil [*Metrics], so services can be
constructed without instrumentation in tests.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dreamlog"

// Metrics holds all Prometheus collectors of the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	DecisionsTotal         *prometheus.CounterVec
	RoleGrantsTotal        *prometheus.CounterVec
	RoleResolutionDuration *prometheus.HistogramVec
	PetitionsTotal         *prometheus.CounterVec
	GuardVerdictsTotal     *prometheus.CounterVec

	// Identity metrics
	SessionEventsTotal *prometheus.CounterVec
	LoginAttemptsTotal *prometheus.CounterVec
}

// New creates all collectors and registers them, together with the Go and
// process collectors, on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authz_decisions_total",
				Help:      "Authorization decisions by capability and outcome",
			},
			[]string{"capability", "outcome"},
		),
		RoleGrantsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authz_role_grants_total",
				Help:      "Role writes by resulting role and entry point",
			},
			[]string{"role", "source", "outcome"},
		),
		RoleResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "authz_role_resolution_seconds",
				Help:      "Time spent loading a principal's role from the store",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"outcome"},
		),
		PetitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authz_petitions_total",
				Help:      "Writer petition operations by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		GuardVerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authz_guard_verdicts_total",
				Help:      "Access guard re-evaluations by outcome",
			},
			[]string{"outcome"},
		),
		SessionEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identity_session_events_total",
				Help:      "Session lifecycle events by kind",
			},
			[]string{"kind"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identity_login_attempts_total",
				Help:      "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.RoleGrantsTotal,
		m.RoleResolutionDuration,
		m.PetitionsTotal,
		m.GuardVerdictsTotal,
		m.SessionEventsTotal,
		m.LoginAttemptsTotal,
	)

	return m
}

// # Recorders

func outcome(ok bool) string {
	if ok {
		return "allowed"
	}
	return "denied"
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveDecision counts one permission check.
func (m *Metrics) ObserveDecision(capability string, allowed bool) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(capability, outcome(allowed)).Inc()
}

// ObserveGrant counts one role write attempt.
func (m *Metrics) ObserveGrant(role, source string, err error) {
	if m == nil {
		return
	}
	m.RoleGrantsTotal.WithLabelValues(role, source, result(err)).Inc()
}

// ObserveRoleResolution records the latency of one role lookup.
func (m *Metrics) ObserveRoleResolution(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.RoleResolutionDuration.WithLabelValues(result(err)).Observe(elapsed.Seconds())
}

// ObservePetition counts one petition operation.
func (m *Metrics) ObservePetition(action string, err error) {
	if m == nil {
		return
	}
	m.PetitionsTotal.WithLabelValues(action, result(err)).Inc()
}

// ObserveGuard counts one guard verdict.
func (m *Metrics) ObserveGuard(allowed bool) {
	if m == nil {
		return
	}
	m.GuardVerdictsTotal.WithLabelValues(outcome(allowed)).Inc()
}

// ObserveSessionEvent counts one session lifecycle event.
func (m *Metrics) ObserveSessionEvent(kind string) {
	if m == nil {
		return
	}
	m.SessionEventsTotal.WithLabelValues(kind).Inc()
}

// ObserveLogin counts one login attempt.
func (m *Metrics) ObserveLogin(err error) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(result(err)).Inc()
}

// # HTTP Instrumentation

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware instruments requests, labelled by chi route pattern to keep
// cardinality bounded.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			start := time.Now()
			recorder := &responseWriter{ResponseWriter: writer, statusCode: http.StatusOK}

			next.ServeHTTP(recorder, request)

			route := "unmatched"
			if routeContext := chi.RouteContext(request.Context()); routeContext != nil {
				if pattern := routeContext.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			m.HTTPRequestsTotal.WithLabelValues(request.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
			m.HTTPRequestDuration.WithLabelValues(request.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
