package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	IdentitiesAdmitted *prometheus.CounterVec
	VotesCast          *prometheus.CounterVec
	EpochsAdvanced     prometheus.Counter
	ItemsResolved      prometheus.Counter
	ClaimsSettled      *prometheus.CounterVec
	SlashesApplied     prometheus.Counter
	ContentIngested    prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		IdentitiesAdmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_identities_admitted_total",
			Help: "Identities admitted to the ledger, by admission path.",
		}, []string{"path"}),
		VotesCast: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_votes_cast_total",
			Help: "Votes recorded, by side.",
		}, []string{"side"}),
		EpochsAdvanced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credence_epochs_advanced_total",
			Help: "Epoch counter advances.",
		}),
		ItemsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credence_items_resolved_total",
			Help: "Item resolutions recorded.",
		}),
		ClaimsSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credence_claims_settled_total",
			Help: "Post-resolution claims settled, by outcome.",
		}, []string{"outcome"}),
		SlashesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credence_slashes_applied_total",
			Help: "Inviter stake slashes applied by the cascade.",
		}),
		ContentIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credence_content_ingested_total",
			Help: "Content items accepted from the dissemination layer.",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credence_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
