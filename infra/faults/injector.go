package faults

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/pilesim/infra/logger"
)

// ReasonFault marks interruptions caused by the injector.
const ReasonFault = "hardware fault"

// Target is the slice of a pile the injector drives.
type Target interface {
	ID() string
	Interrupt(reason string)
}

var (
	faultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pilesim_faults_injected_total",
		Help: "Total faults injected per pile",
	}, []string{"pile_id"})
	faultInterval = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pilesim_fault_interval_seconds",
		Help:    "Interval between injected faults",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(faultsTotal, faultInterval)
}

// Injector interrupts random piles at exponentially distributed intervals,
// approximating a Poisson fault process over the fleet.
type Injector struct {
	cfg     Config
	targets []Target
	log     logger.Logger
	rand    *rand.Rand
	dist    distuv.Exponential
}

// New creates a new Injector over the given piles.
func New(cfg Config, targets []Target) (*Injector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewPCG(seed, seed)
	return &Injector{
		cfg:     cfg,
		targets: targets,
		log:     logger.New("fault-injector"),
		rand:    rand.New(src),
		dist:    distuv.Exponential{Rate: 1 / cfg.MeanTimeBetweenS, Src: src},
	}, nil
}

// Start begins injecting faults until context cancellation.
func (i *Injector) Start(ctx context.Context) {
	if !i.cfg.Enabled || len(i.targets) == 0 {
		return
	}
	for {
		interval := i.nextInterval()
		faultInterval.Observe(interval.Seconds())
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		t := i.targets[i.rand.IntN(len(i.targets))]
		i.log.Warnf("injecting fault into pile %s", t.ID())
		faultsTotal.WithLabelValues(t.ID()).Inc()
		t.Interrupt(ReasonFault)
	}
}

func (i *Injector) nextInterval() time.Duration {
	return time.Duration(i.dist.Rand() * float64(time.Second))
}
