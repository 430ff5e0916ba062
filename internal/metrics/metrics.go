// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Webhook deliveries by provider and outcome.",
	}, []string{"provider", "outcome"})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transitions_total",
		Help: "Applied payment status transitions.",
	}, []string{"provider", "from", "to"})

	DuplicatePaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_duplicate_events_total",
		Help: "Payment events whose external id was already in the ledger.",
	}, []string{"provider"})

	RateFetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_rate_fetch_failures_total",
		Help: "Failed upstream exchange-rate lookups.",
	}, []string{"source"})

	NotificationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_notification_failures_total",
		Help: "Payment notifications that could not be delivered.",
	})
)
