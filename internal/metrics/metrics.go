// Package metrics defines the domain collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors updated by the services.
type Metrics struct {
	ProposalTransitions *prometheus.CounterVec
	AccessGrants        prometheus.Counter
	DatasetIngests      *prometheus.CounterVec
	IngestDuration      prometheus.Histogram
	IngestedRows        prometheus.Counter
	Previews            *prometheus.CounterVec
	PreviewCacheHits    prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProposalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datashare",
			Name:      "proposal_transitions_total",
			Help:      "Proposal lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		AccessGrants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datashare",
			Name:      "access_grants_total",
			Help:      "Relationship edges written by accepted proposals.",
		}),
		DatasetIngests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datashare",
			Name:      "dataset_ingests_total",
			Help:      "Dataset ingestions by outcome.",
		}, []string{"outcome"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "datashare",
			Name:      "dataset_ingest_duration_seconds",
			Help:      "Time spent parsing, desensitizing and persisting a dataset.",
			Buckets:   prometheus.DefBuckets,
		}),
		IngestedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datashare",
			Name:      "dataset_rows_ingested_total",
			Help:      "Rows written to desensitized artifacts.",
		}),
		Previews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datashare",
			Name:      "dataset_previews_total",
			Help:      "Dataset previews by mode.",
		}, []string{"mode"}),
		PreviewCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datashare",
			Name:      "dataset_preview_cache_hits_total",
			Help:      "Stored previews served from the cache.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ProposalTransitions,
			m.AccessGrants,
			m.DatasetIngests,
			m.IngestDuration,
			m.IngestedRows,
			m.Previews,
			m.PreviewCacheHits,
		)
	}
	return m
}

// Outcome labels shared by the services.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)
