package mockdispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/pilesim/core/model"
	"github.com/kilianp07/pilesim/infra/logger"
	"github.com/kilianp07/pilesim/infra/mqtt"
)

// Config holds the mock dispatch server settings.
type Config struct {
	// Address is the HTTP listen address; ":0" picks a free port.
	Address string
	// Scenario optionally names a YAML scenario replayed after startup.
	Scenario string
}

// PileView is the dispatcher's picture of one pile, built from the retained
// state topic and the event stream.
type PileView struct {
	PileID         string    `json:"pile_id"`
	Online         bool      `json:"online"`
	ChargeType     string    `json:"charge_type,omitempty"`
	PowerKW        float64   `json:"power_kw,omitempty"`
	Capacity       int       `json:"capacity,omitempty"`
	AllowInterrupt bool      `json:"allow_interrupt,omitempty"`
	LastEvent      string    `json:"last_event,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type mqttClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) mqttClient {
	return paho.NewClient(opts)
}

const eventHistory = 100

// Server mimics the dispatch side for manual testing: it watches the pile
// fleet over MQTT and exposes HTTP endpoints that drive charge commands.
type Server struct {
	cfg     Config
	mqttCfg mqtt.Config
	log     logger.Logger
	srv     *http.Server
	addr    string
	cli     mqttClient

	mu     sync.Mutex
	piles  map[string]PileView
	events []mqtt.EventMessage

	eventsTotal    *prometheus.CounterVec
	commandsTotal  *prometheus.CounterVec
	decodeFailures prometheus.Counter
}

// New creates a mock dispatch server using the default Prometheus registerer.
func New(cfg Config, mqttCfg mqtt.Config) (*Server, error) {
	return NewWithRegistry(cfg, mqttCfg, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a mock dispatch server and registers its metrics on
// the provided registerer. If reg is nil the default registerer is used.
func NewWithRegistry(cfg Config, mqttCfg mqtt.Config, reg prometheus.Registerer) (*Server, error) {
	if err := mqttCfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	log := logger.New("mock-dispatcher")

	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mockdispatch_pile_events_total",
		Help: "Pile events received over MQTT",
	}, []string{"pile_id", "event"})
	commandsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mockdispatch_commands_total",
		Help: "Commands published to piles",
	}, []string{"type"})
	decodeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mockdispatch_decode_failures_total",
		Help: "Messages that failed to decode",
	})

	if err := reg.Register(eventsTotal); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if exist, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				eventsTotal = exist
			} else {
				log.Errorf("existing collector for mockdispatch_pile_events_total has wrong type %T", are.ExistingCollector)
			}
		}
	}
	if err := reg.Register(commandsTotal); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if exist, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				commandsTotal = exist
			} else {
				log.Errorf("existing collector for mockdispatch_commands_total has wrong type %T", are.ExistingCollector)
			}
		}
	}
	if err := reg.Register(decodeFailures); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if exist, ok := are.ExistingCollector.(prometheus.Counter); ok {
				decodeFailures = exist
			} else {
				log.Errorf("existing collector for mockdispatch_decode_failures_total has wrong type %T", are.ExistingCollector)
			}
		}
	}

	return &Server{
		cfg:            cfg,
		mqttCfg:        mqttCfg,
		log:            log,
		addr:           cfg.Address,
		piles:          map[string]PileView{},
		eventsTotal:    eventsTotal,
		commandsTotal:  commandsTotal,
		decodeFailures: decodeFailures,
	}, nil
}

// Addr returns the listening address once Start has been called.
func (s *Server) Addr() string { return s.addr }

// Start connects to the broker, subscribes to the fleet topics and serves
// HTTP until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	opts, err := mqtt.NewClientOptions(s.mqttCfg, s.mqttCfg.ClientID+"-mock-dispatcher")
	if err != nil {
		return err
	}
	stateFilter := mqtt.StateTopic(s.mqttCfg.TopicPrefix, "+")
	eventFilter := mqtt.EventTopic(s.mqttCfg.TopicPrefix, "+")
	opts.OnConnect = func(c paho.Client) {
		if token := c.Subscribe(stateFilter, 1, s.onState); token.Wait() && token.Error() != nil {
			s.log.Errorf("subscribe %s: %v", stateFilter, token.Error())
		}
		if token := c.Subscribe(eventFilter, 1, s.onEvent); token.Wait() && token.Error() != nil {
			s.log.Errorf("subscribe %s: %v", eventFilter, token.Error())
		}
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	s.cli = cli
	defer cli.Disconnect(250)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	s.srv = &http.Server{Handler: s.routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("shutdown server: %v", err)
		}
		cancel()
	}()

	if s.cfg.Scenario != "" {
		sc, err := LoadScenario(s.cfg.Scenario)
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
		go s.replay(ctx, sc)
	}

	s.log.Infof("mock dispatch server listening on %s", s.addr)
	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/dispatch/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("pong")); err != nil {
			s.log.Errorf("write pong: %v", err)
		}
	})
	mux.HandleFunc("/dispatch/piles", s.handlePiles)
	mux.HandleFunc("/dispatch/events", s.handleEvents)
	mux.HandleFunc("/dispatch/request", s.handleRequest)
	mux.HandleFunc("/dispatch/cancel", s.handleCancel)
	mux.HandleFunc("/dispatch/fault", s.handleFault)
	mux.HandleFunc("/dispatch/close", s.handleClose)
	mux.HandleFunc("/dispatch/open", s.handleOpen)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) onState(_ paho.Client, msg paho.Message) {
	var st mqtt.StateMessage
	if err := json.Unmarshal(msg.Payload(), &st); err != nil || st.PileID == "" {
		s.decodeFailures.Inc()
		s.log.Errorf("bad state on %s", msg.Topic())
		return
	}
	s.mu.Lock()
	v := s.piles[st.PileID]
	v.PileID = st.PileID
	v.Online = st.State == mqtt.StateOnline
	if v.Online {
		v.ChargeType = st.ChargeType
		v.PowerKW = st.PowerKW
		v.Capacity = st.Capacity
		v.AllowInterrupt = st.AllowInterrupt
	}
	v.UpdatedAt = time.Now()
	s.piles[st.PileID] = v
	s.mu.Unlock()
	s.log.Infof("pile %s is %s", st.PileID, st.State)
}

func (s *Server) onEvent(_ paho.Client, msg paho.Message) {
	var ev mqtt.EventMessage
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil || ev.PileID == "" {
		s.decodeFailures.Inc()
		s.log.Errorf("bad event on %s", msg.Topic())
		return
	}
	s.eventsTotal.WithLabelValues(ev.PileID, ev.Event).Inc()
	s.mu.Lock()
	v := s.piles[ev.PileID]
	v.PileID = ev.PileID
	v.LastEvent = ev.Event
	v.UpdatedAt = time.Now()
	s.piles[ev.PileID] = v
	s.events = append(s.events, ev)
	if len(s.events) > eventHistory {
		s.events = s.events[len(s.events)-eventHistory:]
	}
	s.mu.Unlock()
	s.log.Infof("pile %s: %s %s", ev.PileID, ev.Event, ev.RequestID)
}

func (s *Server) handlePiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	list := make([]PileView, 0, len(s.piles))
	for _, v := range s.piles {
		list = append(list, v)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].PileID < list[j].PileID })
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pileID := r.URL.Query().Get("pile_id")
	s.mu.Lock()
	list := make([]mqtt.EventMessage, 0, len(s.events))
	for _, ev := range s.events {
		if pileID == "" || ev.PileID == pileID {
			list = append(list, ev)
		}
	}
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PileID       string  `json:"pile_id"`
		ID           string  `json:"id"`
		ChargeType   string  `json:"charge_type"`
		RequestedKWh float64 `json:"requested_kwh"`
	}
	if !decodePost(w, r, &body) {
		return
	}
	if body.PileID == "" {
		http.Error(w, "pile_id is required", http.StatusBadRequest)
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}
	if body.ChargeType == "" {
		body.ChargeType = string(model.ChargeFast)
	}
	req := model.ChargeRequest{ID: body.ID, Type: model.ChargeType(body.ChargeType), RequestedKWh: body.RequestedKWh}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd := mqtt.Command{Type: mqtt.CmdNew, Request: &mqtt.CommandRequest{
		ID:           body.ID,
		ChargeType:   body.ChargeType,
		RequestedKWh: body.RequestedKWh,
	}}
	if err := s.publish(body.PileID, cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": body.ID, "pile_id": body.PileID})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PileID string `json:"pile_id"`
		ID     string `json:"id"`
	}
	if !decodePost(w, r, &body) {
		return
	}
	if body.PileID == "" || body.ID == "" {
		http.Error(w, "pile_id and id are required", http.StatusBadRequest)
		return
	}
	if err := s.publish(body.PileID, mqtt.Command{Type: mqtt.CmdCancel, ID: body.ID}); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleFault(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PileID string `json:"pile_id"`
		Reason string `json:"reason"`
	}
	if !decodePost(w, r, &body) {
		return
	}
	if body.PileID == "" {
		http.Error(w, "pile_id is required", http.StatusBadRequest)
		return
	}
	if err := s.publish(body.PileID, mqtt.Command{Type: mqtt.CmdFault, Reason: body.Reason}); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.handleSimple(w, r, mqtt.CmdClose)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	s.handleSimple(w, r, mqtt.CmdOpen)
}

func (s *Server) handleSimple(w http.ResponseWriter, r *http.Request, cmdType string) {
	var body struct {
		PileID string `json:"pile_id"`
	}
	if !decodePost(w, r, &body) {
		return
	}
	if body.PileID == "" {
		http.Error(w, "pile_id is required", http.StatusBadRequest)
		return
	}
	if err := s.publish(body.PileID, mqtt.Command{Type: cmdType}); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) publish(pileID string, cmd mqtt.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	topic := mqtt.CommandTopic(s.mqttCfg.TopicPrefix, pileID)
	token := s.cli.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		return err
	}
	s.commandsTotal.WithLabelValues(cmd.Type).Inc()
	s.log.Infof("sent %s to pile %s", cmd.Type, pileID)
	return nil
}

func decodePost(w http.ResponseWriter, r *http.Request, body any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("encode response: %v", err)
	}
}
