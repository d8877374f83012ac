// Package metrics defines and registers all custom Prometheus metrics for the
// school records API. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "school_records"

// ── Auth metrics ──────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials", "disabled" or "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// TokensIssuedTotal counts tokens minted.
// Label:
//   - type: "access" or "refresh"
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of tokens issued, by token type.",
	},
	[]string{"type"},
)

// TokenRejectionsTotal counts bearer tokens refused by the auth middleware.
// Label:
//   - reason: "missing", "expired" or "invalid"
var TokenRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_rejections_total",
		Help:      "Total number of rejected bearer tokens, by reason.",
	},
	[]string{"reason"},
)

// ── Person metrics ────────────────────────────────────────────────────────────

// PersonMutationsTotal counts successful writes on the person aggregate.
// Label:
//   - operation: "create", "update", "deactivate", "reactivate", "purge",
//     "consent_grant", "consent_revoke", "address_add", "address_remove"
var PersonMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "person_mutations_total",
		Help:      "Total number of successful person aggregate mutations, by operation.",
	},
	[]string{"operation"},
)

// ── Deletion scheduler metrics ────────────────────────────────────────────────

// DeletionCandidatesTotal counts candidates processed by the dispatcher.
// Label:
//   - result: "handled", "failed" or "skipped" (already queued)
var DeletionCandidatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deletion_candidates_total",
		Help:      "Total number of scheduled-deletion candidates processed, by result.",
	},
	[]string{"result"},
)

// DeletionQueueDepth tracks candidates waiting across all worker channels.
var DeletionQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "deletion_queue_depth",
		Help:      "Current number of deletion candidates pending in the dispatcher.",
	},
)

// DeletionScanDuration measures one scheduled-deletion scan.
var DeletionScanDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "deletion_scan_duration_seconds",
		Help:      "Duration of a scheduled-deletion scan including enqueueing.",
		Buckets:   prometheus.DefBuckets,
	},
)
