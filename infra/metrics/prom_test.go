package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/kilianp07/routeloop/core/metrics"
	"github.com/kilianp07/routeloop/core/model"
)

func TestPromSinkRecordsCycleOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}

	res := coremetrics.CycleResult{
		Cycle:   model.Cycle{ID: 1, ActorID: "actor-a"},
		Outcome: model.OutcomeCommitted,
		Solver:  model.SolverClassical,
		Elapsed: 20 * time.Millisecond,
	}
	if err := sink.RecordCycleOutcome(res); err != nil {
		t.Fatalf("record: %v", err)
	}

	n := testutil.CollectAndCount(sink.(*PromSink).cycles)
	if n != 1 {
		t.Fatalf("expected 1 cycle series, got %d", n)
	}
}

func TestPromSinkDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("re-registration must reuse collectors: %v", err)
	}
}
