package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/routeloop/config"
	"github.com/kilianp07/routeloop/core/cycle"
	"github.com/kilianp07/routeloop/core/federation"
	"github.com/kilianp07/routeloop/core/ledger"
	coremetrics "github.com/kilianp07/routeloop/core/metrics"
	"github.com/kilianp07/routeloop/core/model"
	corenowcast "github.com/kilianp07/routeloop/core/nowcast"
	"github.com/kilianp07/routeloop/core/solver"
	infraanchor "github.com/kilianp07/routeloop/infra/anchor"
	"github.com/kilianp07/routeloop/infra/logger"
	"github.com/kilianp07/routeloop/infra/metrics"
	inframqtt "github.com/kilianp07/routeloop/infra/mqtt"
	infranowcast "github.com/kilianp07/routeloop/infra/nowcast"
	"github.com/kilianp07/routeloop/internal/eventbus"
	"github.com/kilianp07/routeloop/simulator"
)

// Service orchestrates the control loop: sense, decide, coordinate, commit
// on a fixed cadence. Cycles are independent; a failed cycle leaves the
// previous committed plan in force.
type Service struct {
	cfgFn       func() *config.Config
	adapter     *corenowcast.Adapter
	dispatcher  *cycle.Dispatcher
	coordinator *federation.Coordinator
	led         *ledger.Ledger
	mqttLog     *inframqtt.ClaimLog
	bus         *eventbus.Bus[model.CycleOutcome]
	sink        coremetrics.Sink
	log         logger.Logger
	now         func() time.Time

	cycleID     uint64
	promEnabled bool
	promPort    string
}

// New creates a Service from a static configuration.
func New(cfg *config.Config) (*Service, error) {
	return build(func() *config.Config { return cfg })
}

// NewFromWatcher creates a Service that picks up configuration changes at
// cycle boundaries.
func NewFromWatcher(w *config.Watcher) (*Service, error) {
	return build(w.Latest)
}

func build(cfgFn func() *config.Config) (*Service, error) {
	cfg := cfgFn()
	log := logger.New("service")

	sink, err := metrics.BuildSink(cfg.Metrics, log)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	var feed corenowcast.Feed
	if cfg.Nowcast.Source == "http" {
		feed = infranowcast.NewHTTPFeed(cfg.Nowcast)
	} else {
		feed = simulator.NewFeed(cfg.Simulator)
	}
	var freshness coremetrics.FreshnessRecorder
	if fr, ok := sink.(coremetrics.FreshnessRecorder); ok {
		freshness = fr
	}
	adapter := corenowcast.NewAdapter(feed, cfg.Cycle.Cadence(), freshness, logger.New("nowcast"))

	scorer := solver.WindRiskScorer{RiskWeight: cfg.Solver.RiskWeight}
	dispatcher, err := cycle.NewDispatcher(
		solver.NewClassicalSolver(scorer),
		solver.NewAnnealingSolver(scorer),
		sink,
		logger.New("dispatcher"),
	)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	var claims federation.ClaimLog
	var mqttLog *inframqtt.ClaimLog
	if cfg.MQTT.Enabled {
		mqttLog, err = inframqtt.NewClaimLog(cfg.MQTT, cfg.ActorID)
		if err != nil {
			return nil, fmt.Errorf("mqtt claim log: %w", err)
		}
		claims = mqttLog
	} else {
		claims = federation.NewMemoryClaimLog()
	}
	var conflicts coremetrics.ConflictRecorder
	if cr, ok := sink.(coremetrics.ConflictRecorder); ok {
		conflicts = cr
	}
	coordinator, err := federation.NewCoordinator(claims, cfg.Federation, conflicts, logger.New("coordinator"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	store, err := ledger.NewStore(cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("ledger store: %w", err)
	}
	var commits coremetrics.CommitRecorder
	if cr, ok := sink.(coremetrics.CommitRecorder); ok {
		commits = cr
	}
	led, err := ledger.NewLedger(store, infraanchor.NewAnchorWithFallback(cfg.Anchor), cfg.Ledger, commits, logger.New("ledger"))
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	return &Service{
		cfgFn:       cfgFn,
		adapter:     adapter,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		led:         led,
		mqttLog:     mqttLog,
		bus:         eventbus.New[model.CycleOutcome](),
		sink:        sink,
		log:         log,
		now:         time.Now,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}, nil
}

// Ledger exposes the record store for query surfaces.
func (s *Service) Ledger() *ledger.Ledger { return s.led }

// Outcomes subscribes to per-cycle outcome events. The returned cancel
// function releases the subscription.
func (s *Service) Outcomes() (<-chan model.CycleOutcome, func()) {
	return s.bus.Subscribe()
}

// Run drives the loop until the context is cancelled. The first cycle
// starts immediately; subsequent cycles follow the configured cadence.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, ":"+s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	cadence := s.cfgFn().Cycle.Cadence()
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Configuration changes apply between cycles only.
			if next := s.cfgFn().Cycle.Cadence(); next != cadence {
				cadence = next
				ticker.Reset(cadence)
			}
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full sense-decide-coordinate-commit cycle. Errors
// are terminal for the cycle, never for the loop.
func (s *Service) RunCycle(ctx context.Context) model.CycleOutcome {
	cfg := s.cfgFn()
	s.cycleID++
	start := s.now()
	cyc := model.Cycle{
		ID:        s.cycleID,
		ActorID:   cfg.ActorID,
		StartTime: start,
		Deadline:  start.Add(cfg.Cycle.TotalDeadline()),
	}
	cctx, cancel := context.WithDeadline(ctx, cyc.Deadline)
	defer cancel()

	field := s.adapter.Fetch(cctx, cfg.Cycle.Cadence())
	req := cfg.Route.Request(cfg.ActorID, start)

	dec, err := s.dispatcher.RunCycle(cctx, cyc, field, req, cfg.Solver, cfg.Cycle)
	if err != nil {
		s.log.Errorf("cycle %d produced no decision: %v", cyc.ID, err)
		rec := s.led.Propose(cyc, field, cfg.Solver, model.CandidatePlan{ActorID: cfg.ActorID, CycleID: cyc.ID})
		rec, rerr := s.led.Reject(cctx, rec, "no_decision")
		if rerr != nil {
			s.log.Errorf("record rejection: %v", rerr)
		}
		return s.finish(cyc, model.CycleOutcome{
			Cycle:          cyc,
			Kind:           model.OutcomeRejected,
			FallbackReason: "no_decision",
			RecordHash:     rec.Hash(),
			Elapsed:        s.now().Sub(start),
		}, false)
	}

	rec := s.led.Propose(cyc, field, cfg.Solver, dec.Plan)
	approved, _ := s.coordinator.Reconcile(cctx, dec.Plan, cyc)
	rec, err = s.led.Approve(rec, approved)
	if err == nil {
		rec, err = s.led.Commit(cctx, rec, dec.FallbackReason)
	}
	if err != nil {
		s.log.Errorf("cycle %d commit failed: %v", cyc.ID, err)
		return s.finish(cyc, model.CycleOutcome{
			Cycle:          cyc,
			Kind:           model.OutcomeRejected,
			Solver:         dec.Plan.Solver,
			FallbackReason: dec.FallbackReason,
			Elapsed:        s.now().Sub(start),
		}, false)
	}

	kind := model.OutcomeCommitted
	if approved.Degraded {
		kind = model.OutcomeCommittedDegraded
	}
	elapsed := s.now().Sub(start)
	if elapsed > cfg.Cycle.TotalDeadline() {
		s.log.Warnf("cycle %d overran its deadline (%v)", cyc.ID, elapsed)
	}
	return s.finish(cyc, model.CycleOutcome{
		Cycle:          cyc,
		Kind:           kind,
		Solver:         dec.Plan.Solver,
		FallbackReason: dec.FallbackReason,
		RecordHash:     rec.Hash(),
		Elapsed:        elapsed,
	}, approved.Degraded)
}

func (s *Service) finish(cyc model.Cycle, out model.CycleOutcome, degraded bool) model.CycleOutcome {
	if s.sink != nil {
		res := coremetrics.CycleResult{
			Cycle:          cyc,
			Outcome:        out.Kind,
			Solver:         out.Solver,
			FallbackReason: out.FallbackReason,
			Degraded:       degraded,
			Elapsed:        out.Elapsed,
		}
		if err := s.sink.RecordCycleOutcome(res); err != nil {
			s.log.Errorf("cycle outcome metric: %v", err)
		}
	}
	s.bus.Publish(out)
	s.log.Infof("cycle %d finished: %s in %v", cyc.ID, out.Kind, out.Elapsed)
	return out
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if s.mqttLog != nil {
		s.mqttLog.Disconnect()
	}
	return s.led.Close()
}
