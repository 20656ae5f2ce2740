package collection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchesTotal counts fetches issued by controllers.
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_list_dispatches_total",
			Help: "List fetches dispatched by entity and endpoint kind",
		},
		[]string{"entity", "endpoint_kind"},
	)

	// StaleResponsesTotal counts responses dropped because a newer request superseded them.
	StaleResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_list_stale_responses_total",
			Help: "List responses discarded because they were superseded",
		},
		[]string{"entity"},
	)

	// ErrorsTotal counts fetch failures that were applied to the view.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_list_errors_total",
			Help: "List fetches that ended in the error state",
		},
		[]string{"entity"},
	)
)
