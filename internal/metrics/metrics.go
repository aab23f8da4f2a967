// Package metrics owns the Prometheus registry exposed on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Audit write outcomes
const (
	AuditStored  = "stored"
	AuditSpooled = "spooled"
	AuditDropped = "dropped"
)

type Metrics struct {
	registry *prometheus.Registry

	Transitions      *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	AuditWrites      *prometheus.CounterVec
	HTTPRequestTimes *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "component_transitions_total",
			Help: "Component lifecycle transitions by event and result.",
		}, []string{"event", "result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications persisted, by verb.",
		}, []string{"verb"}),
		AuditWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Audit log writes by outcome.",
		}, []string{"outcome"}),
		HTTPRequestTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	registry.MustRegister(
		m.Transitions,
		m.Notifications,
		m.AuditWrites,
		m.HTTPRequestTimes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
