package mqtt

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/pilesim/core/model"
	"github.com/kilianp07/pilesim/core/pile"
	"github.com/kilianp07/pilesim/core/simclock"
	"github.com/kilianp07/pilesim/infra/logger"
)

// Pile is the slice of a charging pile the agent drives.
type Pile interface {
	ID() string
	Config() pile.Config
	Enqueue(req model.ChargeRequest)
	Cancel(id string)
	Interrupt(reason string)
	Close()
	Open()
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

const eventQueueDepth = 1024

// Agent connects one pile to the broker as an independent device: it
// subscribes to the pile's command topic, publishes its events in order and
// maintains the retained presence message. Emit never drops; events queue up
// while the connection is down.
type Agent struct {
	cfg   Config
	p     Pile
	clock simclock.Clock
	log   logger.Logger

	cli   pahoClient
	queue chan model.PileEvent

	commandTopic string
	eventTopic   string
	stateTopic   string
	offline      []byte
}

// NewAgent prepares the agent for one pile. The connection is opened by Run.
func NewAgent(cfg Config, p Pile, clock simclock.Clock) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	offline, err := json.Marshal(StateMessage{State: StateOffline, PileID: p.ID()})
	if err != nil {
		return nil, err
	}
	return &Agent{
		cfg:          cfg,
		p:            p,
		clock:        clock,
		log:          logger.New("pile-agent"),
		queue:        make(chan model.PileEvent, eventQueueDepth),
		commandTopic: CommandTopic(cfg.TopicPrefix, p.ID()),
		eventTopic:   EventTopic(cfg.TopicPrefix, p.ID()),
		stateTopic:   StateTopic(cfg.TopicPrefix, p.ID()),
		offline:      offline,
	}, nil
}

// Emit queues a pile event for publication. The send blocks when the queue
// is full so event order is preserved end to end.
func (a *Agent) Emit(ev model.PileEvent) {
	a.queue <- ev
}

// Run connects to the broker and publishes queued events until ctx is done.
// On every (re)connect the agent subscribes to its command topic and
// publishes the retained online state.
func (a *Agent) Run(ctx context.Context) error {
	opts, err := NewClientOptions(a.cfg, a.cfg.ClientID+"-"+a.p.ID())
	if err != nil {
		return err
	}
	opts.SetWill(a.stateTopic, string(a.offline), a.cfg.qosFor("state"), true)
	opts.OnConnect = func(c paho.Client) {
		a.log.Infof("pile %s: connected", a.p.ID())
		if token := c.Subscribe(a.commandTopic, a.cfg.qosFor("command"), a.onCommand); token.Wait() && token.Error() != nil {
			a.log.Errorf("pile %s: subscribe error: %v", a.p.ID(), token.Error())
		}
		if token := c.Publish(a.stateTopic, a.cfg.qosFor("state"), true, a.onlinePayload()); token.Wait() && token.Error() != nil {
			a.log.Errorf("pile %s: state publish error: %v", a.p.ID(), token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		a.log.Errorf("pile %s: connection lost: %v", a.p.ID(), err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		a.log.Warnf("pile %s: reconnecting", a.p.ID())
	}

	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(a.cfg.BackoffMS) * time.Millisecond)

	cli := newMQTTClient(opts)
	a.cli = cli
	token := cli.Connect()
	for !token.WaitTimeout(500 * time.Millisecond) {
		select {
		case <-ctx.Done():
			cli.Disconnect(0)
			return ctx.Err()
		default:
		}
	}
	if err := token.Error(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			a.flush()
			a.publish(a.stateTopic, a.cfg.qosFor("state"), true, a.offline)
			cli.Disconnect(250)
			return nil
		case ev := <-a.queue:
			a.publishEvent(ev)
		}
	}
}

// flush publishes whatever is already queued before shutdown.
func (a *Agent) flush() {
	for {
		select {
		case ev := <-a.queue:
			a.publishEvent(ev)
		default:
			return
		}
	}
}

func (a *Agent) onlinePayload() []byte {
	cfg := a.p.Config()
	payload, err := json.Marshal(StateMessage{
		State:          StateOnline,
		PileID:         cfg.ID,
		ChargeType:     string(cfg.Type),
		PowerKW:        cfg.PowerKW,
		Capacity:       cfg.Capacity,
		AllowInterrupt: cfg.AllowInterrupt,
		Time:           wireTime(a.clock.Now()),
	})
	if err != nil {
		a.log.Errorf("pile %s: marshal state: %v", cfg.ID, err)
		return a.offline
	}
	return payload
}

func (a *Agent) onCommand(_ paho.Client, msg paho.Message) {
	cmd, err := decodeCommand(msg.Payload())
	if err != nil {
		a.log.Errorf("pile %s: dropping command: %v", a.p.ID(), err)
		return
	}
	switch cmd.Type {
	case CmdNew:
		a.p.Enqueue(model.ChargeRequest{
			ID:           cmd.Request.ID,
			Type:         model.ChargeType(cmd.Request.ChargeType),
			RequestedKWh: cmd.Request.RequestedKWh,
		})
	case CmdCancel:
		a.p.Cancel(cmd.ID)
	case CmdClose:
		a.p.Close()
	case CmdOpen:
		a.p.Open()
	case CmdFault:
		reason := cmd.Reason
		if reason == "" {
			reason = "fault"
		}
		a.p.Interrupt(reason)
	}
}

func (a *Agent) publishEvent(ev model.PileEvent) {
	payload, err := json.Marshal(NewEventMessage(ev))
	if err != nil {
		a.log.Errorf("pile %s: marshal event: %v", ev.PileID, err)
		return
	}
	a.publish(a.eventTopic, a.cfg.qosFor("event"), false, payload)
}

// publish awaits the broker token, retrying with exponential backoff.
func (a *Agent) publish(topic string, qos byte, retained bool, payload []byte) {
	backoff := time.Duration(a.cfg.BackoffMS) * time.Millisecond
	var err error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		token := a.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		if err = token.Error(); err == nil {
			return
		}
		a.log.Errorf("pile %s: publish attempt %d failed: %v", a.p.ID(), attempt+1, err)
		time.Sleep(backoff * time.Duration(1<<attempt))
	}
	a.log.Errorf("pile %s: giving up on %s: %v", a.p.ID(), topic, err)
}
