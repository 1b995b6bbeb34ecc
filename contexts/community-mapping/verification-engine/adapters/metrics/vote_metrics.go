package metrics

import (
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "verification"

// VoteMetrics implements ports.VoteObserver on top of Prometheus collectors.
type VoteMetrics struct {
	VotesProcessed       *prometheus.CounterVec
	ProcessingDuration   prometheus.Histogram
	StatusTransitions    *prometheus.CounterVec
	VerifiedContribution *prometheus.CounterVec
}

// NewVoteMetrics creates and registers vote pipeline metrics on the given registry.
func NewVoteMetrics(reg prometheus.Registerer) *VoteMetrics {
	m := &VoteMetrics{
		VotesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_processed_total",
			Help:      "Total number of votes processed, by result.",
		}, []string{"result"}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "votes_processing_duration_seconds",
			Help:      "Duration of vote processing in seconds, lock wait included.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Total number of entity status changes, by previous and new status.",
		}, []string{"from", "to"}),
		VerifiedContribution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verified_contributions_total",
			Help:      "Total number of submitter counter increments, by entity kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.VotesProcessed, m.ProcessingDuration, m.StatusTransitions, m.VerifiedContribution)
	return m
}

func (m *VoteMetrics) ObserveVote(result string, duration time.Duration) {
	m.VotesProcessed.WithLabelValues(result).Inc()
	m.ProcessingDuration.Observe(duration.Seconds())
}

func (m *VoteMetrics) ObserveTransition(from entities.Status, to entities.Status) {
	m.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *VoteMetrics) ObserveVerifiedContribution(kind entities.EntityKind) {
	m.VerifiedContribution.WithLabelValues(string(kind)).Inc()
}

// CacheMetrics tracks the entity read cache and its circuit breaker.
type CacheMetrics struct {
	Lookups      *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entity_cache",
			Name:      "lookups_total",
			Help:      "Entity cache lookups, by result (hit, miss, error, bypass).",
		}, []string{"result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "entity_cache",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"component"}),
	}

	reg.MustRegister(m.Lookups, m.BreakerState)
	return m
}

func (m *CacheMetrics) ObserveLookup(result string) {
	m.Lookups.WithLabelValues(result).Inc()
}

func (m *CacheMetrics) ObserveBreakerState(component string, state int) {
	m.BreakerState.WithLabelValues(component).Set(float64(state))
}
