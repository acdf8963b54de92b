package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/pilesim/api/piles"
	"github.com/kilianp07/pilesim/config"
	"github.com/kilianp07/pilesim/core/billing"
	coremetrics "github.com/kilianp07/pilesim/core/metrics"
	"github.com/kilianp07/pilesim/core/model"
	"github.com/kilianp07/pilesim/core/pile"
	"github.com/kilianp07/pilesim/core/pilestatus"
	"github.com/kilianp07/pilesim/core/sessionlog"
	"github.com/kilianp07/pilesim/core/simclock"
	"github.com/kilianp07/pilesim/core/tariff"
	"github.com/kilianp07/pilesim/infra/faults"
	"github.com/kilianp07/pilesim/infra/logger"
	"github.com/kilianp07/pilesim/infra/metrics"
	"github.com/kilianp07/pilesim/infra/mqtt"
	"github.com/kilianp07/pilesim/internal/eventbus"
)

// unit is one pile together with its broker agent.
type unit struct {
	pile  *pile.Pile
	agent *mqtt.Agent
}

// fanEmitter forwards pile events to the ordered protocol path and mirrors
// them on the observer bus. The agent field is set right after the agent is
// built; Emit is only called once the pile runs.
type fanEmitter struct {
	agent *mqtt.Agent
	bus   *eventbus.Bus
}

func (e *fanEmitter) Emit(ev model.PileEvent) {
	e.agent.Emit(ev)
	e.bus.Publish(ev)
}

// Service wires the simulated piles to the broker and the observability
// surfaces.
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	clock    *simclock.SimulatedClock
	bus      *eventbus.Bus
	units    []unit
	store    *pilestatus.MemoryStore
	sink     coremetrics.MetricsSink
	sessions sessionlog.Store
	injector *faults.Injector
	closers  []func()
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	clock, err := simclock.New(cfg.Clock)
	if err != nil {
		return nil, fmt.Errorf("clock: %w", err)
	}

	table, created, err := tariff.LoadOrCreate(cfg.Tariff.Path)
	if err != nil {
		return nil, fmt.Errorf("tariff: %w", err)
	}
	if created {
		logg.Infof("wrote default price table to %s", cfg.Tariff.Path)
	}

	svc := &Service{
		cfg:   cfg,
		log:   logg,
		clock: clock,
		bus:   eventbus.New(),
		store: pilestatus.NewMemoryStore(),
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics)
		sinks = append(sinks, sink)
		if is, ok := sink.(*metrics.InfluxSink); ok {
			svc.closers = append(svc.closers, is.Close)
		}
	}
	svc.sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		svc.sink = sinks[0]
	} else if len(sinks) > 1 {
		svc.sink = metrics.NewMultiSink(sinks...)
	}

	if cfg.SessionLog.Enabled {
		store, err := sessionlog.NewJSONLStore(cfg.SessionLog.Path)
		if err != nil {
			return nil, fmt.Errorf("session log: %w", err)
		}
		svc.sessions = store
	}

	engine := billing.NewEngine(table)
	interval := cfg.Clock.PollInterval()
	targets := make([]faults.Target, 0, len(cfg.Piles))
	for _, pc := range cfg.Piles {
		em := &fanEmitter{bus: svc.bus}
		p, err := pile.New(pc, clock, engine, interval, em, logger.New("pile-"+pc.ID))
		if err != nil {
			return nil, fmt.Errorf("pile %s: %w", pc.ID, err)
		}
		agent, err := mqtt.NewAgent(cfg.MQTT, p, clock)
		if err != nil {
			return nil, fmt.Errorf("pile %s agent: %w", pc.ID, err)
		}
		em.agent = agent
		svc.units = append(svc.units, unit{pile: p, agent: agent})
		targets = append(targets, p)
		// Piles appear in the status API before their first event.
		svc.store.Set(pilestatus.Status{
			PileID:     pc.ID,
			ChargeType: string(pc.Type),
			PowerKW:    pc.PowerKW,
			UpdatedAt:  clock.Now(),
		})
	}

	if cfg.Faults.Enabled {
		svc.injector, err = faults.New(cfg.Faults, targets)
		if err != nil {
			return nil, fmt.Errorf("fault injector: %w", err)
		}
	}
	return svc, nil
}

// Run starts every pile with its agent plus the collectors and blocks until
// all piles have shut down after ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	pilestatus.Start(ctx, s.bus, s.store)
	if s.sessions != nil {
		sessionlog.Start(ctx, s.bus, s.sessions, s.log)
	}
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.cfg.StatusAPI.Enabled {
		go func() {
			if err := piles.Serve(ctx, s.cfg.StatusAPI.Address, s.store); err != nil {
				s.log.Errorf("status api: %v", err)
			}
		}()
	}
	if s.injector != nil {
		go s.injector.Start(ctx)
	}

	var wg sync.WaitGroup
	for _, u := range s.units {
		wg.Add(2)
		go func(u unit) {
			defer wg.Done()
			if err := u.agent.Run(ctx); err != nil && ctx.Err() == nil {
				s.log.Errorf("pile %s agent: %v", u.pile.ID(), err)
			}
		}(u)
		go func(u unit) {
			defer wg.Done()
			if err := u.pile.Run(ctx); err != nil && ctx.Err() == nil {
				s.log.Errorf("pile %s: %v", u.pile.ID(), err)
			}
		}(u)
	}
	s.log.Infof("simulating %d piles at %dx speed, tick every %s",
		len(s.units), s.clock.Speed(), s.cfg.Clock.PollInterval())
	wg.Wait()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	for _, closeFn := range s.closers {
		closeFn()
	}
	if s.sessions != nil {
		return s.sessions.Close()
	}
	return nil
}
