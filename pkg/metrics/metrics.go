// Package metrics defines the application's Prometheus collectors. They are
// registered against the metrics server's registry at startup.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsProcessedTotal counts ingested engagement events by type.
	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_events_processed_total",
			Help: "Total number of engagement events processed",
		},
		[]string{"event_type"},
	)

	// EventsRejectedTotal counts events that failed validation.
	EventsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_events_rejected_total",
			Help: "Total number of engagement events rejected at intake",
		},
	)

	// RuleMatchesTotal counts rule evaluations that produced a match.
	RuleMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_rule_matches_total",
			Help: "Total number of rule matches",
		},
		[]string{"rule_id", "action_type"},
	)

	// ActionsCreatedTotal counts actions appended to the ledger.
	ActionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_actions_created_total",
			Help: "Total number of actions created",
		},
		[]string{"action_type"},
	)

	// ActionOutcomesTotal counts outcome transitions by final outcome.
	ActionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_action_outcomes_total",
			Help: "Total number of action outcome transitions",
		},
		[]string{"outcome"},
	)

	// CatalogRefreshesTotal counts rule cache refresh attempts by result.
	CatalogRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_catalog_refreshes_total",
			Help: "Total number of rule catalog cache refreshes",
		},
		[]string{"result"},
	)

	// RulesGeneratedTotal counts rules created by the auto generator.
	RulesGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_rules_generated_total",
			Help: "Total number of auto-generated rules",
		},
		[]string{"category_id"},
	)

	// EventProcessingDuration observes end-to-end pipeline latency.
	EventProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engagement_event_processing_duration_seconds",
			Help:    "Time spent processing one engagement event",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Collectors returns every application collector for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		EventsProcessedTotal,
		EventsRejectedTotal,
		RuleMatchesTotal,
		ActionsCreatedTotal,
		ActionOutcomesTotal,
		CatalogRefreshesTotal,
		RulesGeneratedTotal,
		EventProcessingDuration,
	}
}
