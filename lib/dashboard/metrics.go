// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "custody"

// Drop reasons reported in the events_dropped_total metric.
const (
	DropUndecodable    = "undecodable"
	DropUnknownKind    = "unknown_kind"
	DropInvalid        = "invalid"
	DropMalformed      = "malformed"
	DropDuplicate      = "duplicate"
	DropUnknownSubtree = "unknown_subtree"
	DropStale          = "stale"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	Events           *prometheus.CounterVec
	Dropped          *prometheus.CounterVec
	Completions      prometheus.Counter
	ExpandRequests   *prometheus.CounterVec
	PresenceChanges  *prometheus.CounterVec
	Evicted          prometheus.Counter
	OpenAccumulators prometheus.Gauge
	Records          prometheus.Gauge

	// Deliveries counts outbound request deliveries by kind and
	// result (ok, failed). The session does not update it; the
	// transport reports through [Metrics.ObserveDelivery].
	Deliveries *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with
// registerer. A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Inbound events decoded, by kind.",
		}, []string{"kind"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_dropped_total",
			Help:      "Inbound events rejected without changing state, by reason.",
		}, []string{"reason"}),
		Completions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fragment_completions_total",
			Help:      "Fragment sets fully received and merged.",
		}),
		ExpandRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "expand_requests_total",
			Help:      "Subtree requests sent, by trigger (user, auto, retry).",
		}, []string{"trigger"}),
		PresenceChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "presence_changes_total",
			Help:      "Presence flags that changed value, by tier.",
		}, []string{"tier"}),
		Evicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "accumulators_evicted_total",
			Help:      "Partially received fragment sets discarded after sitting idle.",
		}),
		OpenAccumulators: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "open_accumulators",
			Help:      "Fragment sets currently being received.",
		}),
		Records: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "records",
			Help:      "File records held by the catalog.",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "request_deliveries_total",
			Help:      "Outbound requests handed to the backend, by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// ObserveDelivery counts one outbound delivery attempt. It matches
// transport.Outbox.OnResult.
func (m *Metrics) ObserveDelivery(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Deliveries.WithLabelValues(kind, result).Inc()
}
