package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/routeloop/core/metrics"
	"github.com/kilianp07/routeloop/infra/logger"
)

// InfluxSink writes control-loop events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordCycleOutcome writes the cycle result as a line protocol event.
func (s *InfluxSink) RecordCycleOutcome(res coremetrics.CycleResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("cycle_outcome").
		AddTag("actor_id", res.Cycle.ActorID).
		AddTag("outcome", res.Outcome.String()).
		AddTag("solver", string(res.Solver)).
		AddTag("component", "loop").
		AddField("cycle_id", int64(res.Cycle.ID)).
		AddField("elapsed_ms", round3(res.Elapsed.Seconds()*1000)).
		AddField("degraded", res.Degraded).
		AddField("fallback_reason", res.FallbackReason).
		SetTime(res.Cycle.StartTime)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSolverLatency writes per-solver timing points.
func (s *InfluxSink) RecordSolverLatency(recs []coremetrics.SolverLatency) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("solver_latency").
			AddTag("solver", string(r.Solver)).
			AddTag("timed_out", strconv.FormatBool(r.TimedOut)).
			AddTag("component", "dispatcher").
			AddField("cycle_id", int64(r.CycleID)).
			AddField("budget_ms", round3(r.Budget.Seconds()*1000)).
			AddField("elapsed_ms", round3(r.Elapsed.Seconds()*1000)).
			SetTime(time.Now())
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordNowcastFreshness writes a freshness sample.
func (s *InfluxSink) RecordNowcastFreshness(ev coremetrics.FreshnessEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("nowcast_freshness").
		AddTag("stale", strconv.FormatBool(ev.Stale)).
		AddTag("component", "nowcast_adapter").
		AddField("age_ms", round3(ev.Age.Seconds()*1000)).
		AddField("confidence", round3(ev.Confidence)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFederationConflict writes a conflict resolution event.
func (s *InfluxSink) RecordFederationConflict(ev coremetrics.ConflictEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("federation_conflict").
		AddTag("actor_id", ev.ActorID).
		AddTag("corridor", ev.Corridor).
		AddTag("resolved", strconv.FormatBool(ev.Resolved)).
		AddTag("component", "coordinator").
		AddField("cycle_id", int64(ev.CycleID)).
		AddField("winner", ev.Winner).
		AddField("retries", ev.Retries).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordLedgerCommit writes a ledger record event.
func (s *InfluxSink) RecordLedgerCommit(ev coremetrics.CommitEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("ledger_record").
		AddTag("actor_id", ev.ActorID).
		AddTag("state", ev.State).
		AddTag("anchor_pending", strconv.FormatBool(ev.AnchorPending)).
		AddTag("component", "ledger").
		AddField("cycle_id", int64(ev.CycleID)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
