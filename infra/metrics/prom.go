package metrics

import (
	"strconv"

	coremetrics "github.com/kilianp07/routeloop/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records control-loop events in Prometheus metrics.
type PromSink struct {
	cycles     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	conflicts  *prometheus.CounterVec
	commits    *prometheus.CounterVec
	confidence prometheus.Gauge
	age        prometheus.Gauge
}

// NewPromSink registers loop metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loop_cycles_total",
		Help: "Total number of decision cycles by outcome",
	}, []string{"actor_id", "outcome", "solver", "fallback_reason"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_latency_seconds",
		Help:    "Solver wall time per invocation",
		Buckets: prometheus.DefBuckets,
	}, []string{"solver", "timed_out"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "federation_conflicts_total",
		Help: "Total number of federation conflicts by corridor",
	}, []string{"corridor", "resolved"})
	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_records_total",
		Help: "Total number of ledger records by terminal state",
	}, []string{"state", "anchor_pending"})
	confidence := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nowcast_confidence",
		Help: "Confidence of the nowcast field used by the latest cycle",
	})
	age := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nowcast_age_seconds",
		Help: "Age of the nowcast field used by the latest cycle",
	})

	if err := reg.Register(cycles); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			cycles = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(conflicts); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			conflicts = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(commits); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			commits = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(confidence); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			confidence = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(age); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			age = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		cycles:     cycles,
		latency:    latency,
		conflicts:  conflicts,
		commits:    commits,
		confidence: confidence,
		age:        age,
	}, nil
}

// RecordCycleOutcome increments the cycle counter.
func (s *PromSink) RecordCycleOutcome(res coremetrics.CycleResult) error {
	s.cycles.WithLabelValues(res.Cycle.ActorID, res.Outcome.String(), string(res.Solver), res.FallbackReason).Inc()
	return nil
}

// RecordSolverLatency records the solver latency histogram.
func (s *PromSink) RecordSolverLatency(recs []coremetrics.SolverLatency) error {
	for _, r := range recs {
		s.latency.WithLabelValues(string(r.Solver), strconv.FormatBool(r.TimedOut)).Observe(r.Elapsed.Seconds())
	}
	return nil
}

// RecordNowcastFreshness sets the freshness gauges.
func (s *PromSink) RecordNowcastFreshness(ev coremetrics.FreshnessEvent) error {
	s.confidence.Set(ev.Confidence)
	s.age.Set(ev.Age.Seconds())
	return nil
}

// RecordFederationConflict increments the conflict counter.
func (s *PromSink) RecordFederationConflict(ev coremetrics.ConflictEvent) error {
	s.conflicts.WithLabelValues(ev.Corridor, strconv.FormatBool(ev.Resolved)).Inc()
	return nil
}

// RecordLedgerCommit increments the ledger record counter.
func (s *PromSink) RecordLedgerCommit(ev coremetrics.CommitEvent) error {
	s.commits.WithLabelValues(ev.State, strconv.FormatBool(ev.AnchorPending)).Inc()
	return nil
}
