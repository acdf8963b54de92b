package pile

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/pilesim/core/billing"
	"github.com/kilianp07/pilesim/core/logger"
	"github.com/kilianp07/pilesim/core/model"
	"github.com/kilianp07/pilesim/core/simclock"
)

// EventEmitter receives every state change a pile reports. Emit is called
// from the pile goroutine in emission order.
type EventEmitter interface {
	Emit(ev model.PileEvent)
}

// Rejection and cancellation reasons carried on events.
const (
	ReasonQueueFull  = "queue full"
	ReasonPileClosed = "pile closed"
	ReasonDuplicate  = "duplicate id"
	ReasonBusy       = "pile busy"
)

type commandKind int

const (
	cmdEnqueue commandKind = iota
	cmdCancel
	cmdInterrupt
	cmdClose
	cmdOpen
)

func (k commandKind) String() string {
	switch k {
	case cmdEnqueue:
		return "enqueue"
	case cmdCancel:
		return "cancel"
	case cmdInterrupt:
		return "interrupt"
	case cmdClose:
		return "close"
	case cmdOpen:
		return "open"
	default:
		return "unknown"
	}
}

type command struct {
	kind   commandKind
	req    model.ChargeRequest
	id     string
	reason string
}

// Pile simulates one charging pile: a bounded FIFO of requests feeding a
// single charging slot, billed against the tariff on every tick. All state
// is owned by the Run goroutine; the exported operations only enqueue
// commands.
type Pile struct {
	cfg      Config
	clock    simclock.Clock
	engine   *billing.Engine
	interval time.Duration
	emitter  EventEmitter
	log      logger.Logger

	cmds chan command

	waiting []*model.ChargeSession
	active  *model.ChargeSession
	closed  bool
}

// New builds a pile. The interval is the real tick period; simulated time is
// read from the clock on every tick.
func New(cfg Config, clock simclock.Clock, engine *billing.Engine, interval time.Duration, emitter EventEmitter, log logger.Logger) (*Pile, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil || engine == nil || emitter == nil {
		return nil, fmt.Errorf("pile %s: clock, engine and emitter are required", cfg.ID)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("pile %s: tick interval must be positive", cfg.ID)
	}
	return &Pile{
		cfg:      cfg,
		clock:    clock,
		engine:   engine,
		interval: interval,
		emitter:  emitter,
		log:      log,
		cmds:     make(chan command, 64),
	}, nil
}

// ID returns the pile identifier.
func (p *Pile) ID() string { return p.cfg.ID }

// Config returns a copy of the pile configuration.
func (p *Pile) Config() Config { return p.cfg }

// Enqueue submits a charge request to the pile.
func (p *Pile) Enqueue(req model.ChargeRequest) {
	p.send(command{kind: cmdEnqueue, req: req})
}

// Cancel withdraws a waiting request by id. The active session cannot be
// cancelled.
func (p *Pile) Cancel(id string) {
	p.send(command{kind: cmdCancel, id: id})
}

// Interrupt triggers a charging fault. Ignored when the pile does not allow
// interruptions or nothing is charging.
func (p *Pile) Interrupt(reason string) {
	p.send(command{kind: cmdInterrupt, reason: reason})
}

// Close takes the pile out of service: the active session is interrupted
// with a final bill, waiting requests are cancelled and new requests are
// rejected until Open.
func (p *Pile) Close() {
	p.send(command{kind: cmdClose})
}

// Open returns a closed pile to service.
func (p *Pile) Open() {
	p.send(command{kind: cmdOpen})
}

// send hands a command to the pile goroutine without blocking. An enqueue
// that does not fit is answered with a rejection so the requester always
// gets a verdict; the event is built from immutable fields only because it
// leaves from the caller goroutine.
func (p *Pile) send(c command) {
	select {
	case p.cmds <- c:
	default:
		p.log.Warnf("pile %s: command queue full, dropping %s", p.cfg.ID, c.kind)
		if c.kind == cmdEnqueue {
			p.emitter.Emit(model.PileEvent{
				PileID:  p.cfg.ID,
				Kind:    model.EventRejected,
				Session: model.ChargeSession{Request: c.req, Status: model.StatusQueued},
				Reason:  ReasonBusy,
				Time:    p.clock.Now(),
			})
		}
	}
}

// Run drives the pile until ctx is done. Ticks fire on the real interval
// regardless of the simulation speed; commands are applied in arrival order.
func (p *Pile) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.log.Infof("pile %s: running (type=%s power=%.1fkW capacity=%d)", p.cfg.ID, p.cfg.Type, p.cfg.PowerKW, p.cfg.Capacity)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick()
		case c := <-p.cmds:
			p.apply(c)
		}
	}
}

func (p *Pile) tick() {
	now := p.clock.Now()
	if p.promote(now) {
		return
	}
	if p.active == nil {
		return
	}
	s := p.active
	if p.engine.Accrue(s, p.cfg.PowerKW, now) {
		s.Status = model.StatusCompleted
		s.EndTime = s.LastBilled
		p.active = nil
		p.emit(model.EventCompleted, *s, "", now)
		return
	}
	p.emit(model.EventProgress, *s, "", now)
}

func (p *Pile) apply(c command) {
	now := p.clock.Now()
	switch c.kind {
	case cmdEnqueue:
		p.enqueue(c.req, now)
	case cmdCancel:
		p.cancel(c.id, now)
	case cmdInterrupt:
		p.interrupt(c.reason, now)
	case cmdClose:
		p.shutdown(now)
	case cmdOpen:
		p.reopen(now)
	}
}

func (p *Pile) enqueue(req model.ChargeRequest, now time.Time) {
	req.ArrivalTime = now
	s := model.ChargeSession{Request: req, Status: model.StatusQueued}
	if p.closed {
		p.emit(model.EventRejected, s, ReasonPileClosed, now)
		return
	}
	if err := req.Validate(); err != nil {
		p.emit(model.EventRejected, s, err.Error(), now)
		return
	}
	if p.has(req.ID) {
		p.emit(model.EventRejected, s, ReasonDuplicate, now)
		return
	}
	if p.load() >= p.cfg.Capacity {
		p.emit(model.EventRejected, s, ReasonQueueFull, now)
		return
	}
	p.waiting = append(p.waiting, &s)
	p.emit(model.EventAdmitted, s, "", now)
	p.promote(now)
}

func (p *Pile) cancel(id string, now time.Time) {
	for i, s := range p.waiting {
		if s.Request.ID == id {
			p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
			p.emit(model.EventCanceled, *s, "", now)
			return
		}
	}
	if p.active != nil && p.active.Request.ID == id {
		p.log.Warnf("pile %s: request %s is charging and cannot be cancelled", p.cfg.ID, id)
		return
	}
	p.log.Warnf("pile %s: cancel for unknown request %s", p.cfg.ID, id)
}

func (p *Pile) interrupt(reason string, now time.Time) {
	if p.active == nil {
		p.log.Debugf("pile %s: fault with no active session", p.cfg.ID)
		return
	}
	if !p.cfg.AllowInterrupt {
		p.log.Warnf("pile %s: interruptions not allowed, ignoring fault", p.cfg.ID)
		return
	}
	p.finishInterrupted(reason, now)
}

func (p *Pile) shutdown(now time.Time) {
	if p.closed {
		return
	}
	p.closed = true
	if p.active != nil {
		p.finishInterrupted(ReasonPileClosed, now)
	}
	dropped := p.waiting
	p.waiting = nil
	for _, s := range dropped {
		p.emit(model.EventCanceled, *s, ReasonPileClosed, now)
	}
	p.emit(model.EventClosed, model.ChargeSession{}, "", now)
	p.log.Infof("pile %s: closed", p.cfg.ID)
}

func (p *Pile) reopen(now time.Time) {
	if !p.closed {
		return
	}
	p.closed = false
	p.emit(model.EventOpened, model.ChargeSession{}, "", now)
	p.log.Infof("pile %s: open", p.cfg.ID)
}

// promote starts the head of the queue when the slot is free. Reports
// whether a session was started.
func (p *Pile) promote(now time.Time) bool {
	if p.closed || p.active != nil || len(p.waiting) == 0 {
		return false
	}
	s := p.waiting[0]
	p.waiting = p.waiting[1:]
	s.Status = model.StatusCharging
	s.StartTime = now
	s.LastBilled = now
	p.active = s
	p.emit(model.EventProgress, *s, "", now)
	return true
}

// finishInterrupted bills the active session up to now and ends it. If the
// final accrual reaches the energy target first, the session completes.
func (p *Pile) finishInterrupted(reason string, now time.Time) {
	s := p.active
	p.active = nil
	if p.engine.Accrue(s, p.cfg.PowerKW, now) {
		s.Status = model.StatusCompleted
		s.EndTime = s.LastBilled
		p.emit(model.EventCompleted, *s, "", now)
		return
	}
	s.Status = model.StatusInterrupted
	s.EndTime = now
	p.emit(model.EventInterrupted, *s, reason, now)
}

func (p *Pile) has(id string) bool {
	if p.active != nil && p.active.Request.ID == id {
		return true
	}
	for _, s := range p.waiting {
		if s.Request.ID == id {
			return true
		}
	}
	return false
}

func (p *Pile) load() int {
	n := len(p.waiting)
	if p.active != nil {
		n++
	}
	return n
}

func (p *Pile) emit(kind model.EventKind, s model.ChargeSession, reason string, now time.Time) {
	ev := model.PileEvent{
		PileID:  p.cfg.ID,
		Kind:    kind,
		Session: s,
		Reason:  reason,
		Waiting: len(p.waiting),
		Time:    now,
	}
	if kind == model.EventProgress {
		ev.EstimatedEnd = billing.EstimatedEnd(s, p.cfg.PowerKW)
	}
	p.emitter.Emit(ev)
}
