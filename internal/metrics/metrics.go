// Package metrics provides Prometheus counters for crawl runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReposTotal counts repositories by terminal outcome.
	// Labels: outcome (scanned, clone_failed, scan_failed, collision)
	ReposTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codetrawl",
			Subsystem: "crawler",
			Name:      "repos_total",
			Help:      "Total number of repositories by terminal outcome",
		},
		[]string{"outcome"},
	)

	// MatchesTotal counts match records committed to the output artifact.
	MatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codetrawl",
			Subsystem: "crawler",
			Name:      "matches_total",
			Help:      "Total number of match records written",
		},
	)

	// TasksInFlight tracks repository tasks between admission and release.
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codetrawl",
			Subsystem: "crawler",
			Name:      "tasks_in_flight",
			Help:      "Number of repository tasks currently holding a slot",
		},
	)

	// CleanupFailures counts best-effort removals that did not succeed.
	CleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codetrawl",
			Subsystem: "crawler",
			Name:      "cleanup_failures_total",
			Help:      "Total number of failed workspace removals",
		},
	)

	// SearchPages counts search result pages fetched.
	SearchPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codetrawl",
			Subsystem: "search",
			Name:      "pages_total",
			Help:      "Total number of search result pages fetched",
		},
	)
)
