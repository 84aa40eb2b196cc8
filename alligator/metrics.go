package alligator

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rony4d/go-alligator/inter"
)

type alligatorMetrics struct {
	subdelegations prometheus.Counter
	casts          *prometheus.CounterVec
	chains         prometheus.Counter
	skippedChains  prometheus.Counter
	rejections     *prometheus.CounterVec
	votesCast      prometheus.Counter
	paused         prometheus.Gauge
}

func (m *alligatorMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.subdelegations = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "alligator_subdelegations_total",
		Help: "subdelegation rules written",
	})
	m.casts = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "alligator_casts_total",
		Help: "committed casts by entry point",
	}, []string{"kind"})
	m.chains = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "alligator_chains_validated_total",
		Help: "authority chains that passed validation",
	})
	m.skippedChains = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "alligator_chains_skipped_total",
		Help: "batched chains skipped because they had nothing left to cast",
	})
	m.rejections = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "alligator_rejections_total",
		Help: "rejected calls by reason",
	}, []string{"reason"})
	// float counter; vote weights above 2^53 lose precision here only
	m.votesCast = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "alligator_votes_cast_total",
		Help: "weight forwarded to the tally system",
	})
	m.paused = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "alligator_paused",
		Help: "whether mutating entry points are paused (0 or 1)",
	})
}

var rejectionReasons = []struct {
	err    error
	reason string
}{
	{inter.ErrNotDelegated, "not_delegated"},
	{inter.ErrTooManyRedelegations, "too_many_redelegations"},
	{inter.ErrNotValidYet, "not_valid_yet"},
	{inter.ErrNotValidAnymore, "not_valid_anymore"},
	{inter.ErrTooEarly, "too_early"},
	{inter.ErrInvalidCustomRule, "invalid_custom_rule"},
	{inter.ErrAllowanceExceeded, "allowance_exceeded"},
	{inter.ErrZeroVotesToCast, "zero_votes"},
	{inter.ErrWeightExceeded, "weight_exceeded"},
	{inter.ErrLengthMismatch, "length_mismatch"},
	{inter.ErrInvalidSignature, "invalid_signature"},
	{inter.ErrEmptyAuthority, "empty_authority"},
	{inter.ErrInvalidSupport, "invalid_support"},
	{inter.ErrPaused, "paused"},
	{inter.ErrNotOwner, "not_owner"},
}

func rejectionReason(err error) string {
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
