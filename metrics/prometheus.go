// Package metrics exposes Prometheus counters for stored interactions and receiver outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatstore/errormsg"
	"chatstore/storage"
)

// Sink records chatstore metrics. It implements storage.Observer.
type Sink struct {
	interactionsInserted *prometheus.CounterVec
	receiverOutcomes     *prometheus.CounterVec
	gatherer             prometheus.Gatherer
}

var _ storage.Observer = (*Sink)(nil)

// NewSink registers the collectors with reg. A nil reg uses a fresh private registry.
func NewSink(reg *prometheus.Registry) *Sink {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Sink{
		interactionsInserted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstore_interactions_inserted_total",
				Help: "Total number of interactions committed, labeled by record type and error category.",
			},
			[]string{"record_type", "error_type"},
		),
		receiverOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstore_receiver_outcomes_total",
				Help: "Total number of inbound envelopes processed, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		gatherer: reg,
	}
}

// InteractionInserted counts one committed interaction row.
func (s *Sink) InteractionInserted(row storage.InteractionRow) {
	errorType := "none"
	if row.ErrorType != nil {
		errorType = errormsg.ParseErrorType(*row.ErrorType).String()
	}
	s.interactionsInserted.WithLabelValues(row.RecordType, errorType).Inc()
}

// ReceiverOutcome counts one processed envelope.
func (s *Sink) ReceiverOutcome(outcome string) {
	s.receiverOutcomes.WithLabelValues(outcome).Inc()
}

// Handler serves the sink's registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}
