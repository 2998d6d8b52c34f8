package metrics

import coremetrics "github.com/kilianp07/routeloop/core/metrics"

// MultiSink fans control-loop events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCycleOutcome forwards the result to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordCycleOutcome(res coremetrics.CycleResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordCycleOutcome(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordSolverLatency forwards latency records when supported by the sink.
func (m *MultiSink) RecordSolverLatency(recs []coremetrics.SolverLatency) error {
	for _, s := range m.Sinks {
		if lr, ok := s.(coremetrics.SolverLatencyRecorder); ok {
			if err := lr.RecordSolverLatency(recs); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordNowcastFreshness forwards freshness samples.
func (m *MultiSink) RecordNowcastFreshness(ev coremetrics.FreshnessEvent) error {
	for _, s := range m.Sinks {
		if fr, ok := s.(coremetrics.FreshnessRecorder); ok {
			if err := fr.RecordNowcastFreshness(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFederationConflict forwards conflict events.
func (m *MultiSink) RecordFederationConflict(ev coremetrics.ConflictEvent) error {
	for _, s := range m.Sinks {
		if cr, ok := s.(coremetrics.ConflictRecorder); ok {
			if err := cr.RecordFederationConflict(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordLedgerCommit forwards ledger record events.
func (m *MultiSink) RecordLedgerCommit(ev coremetrics.CommitEvent) error {
	for _, s := range m.Sinks {
		if cr, ok := s.(coremetrics.CommitRecorder); ok {
			if err := cr.RecordLedgerCommit(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
