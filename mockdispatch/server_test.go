package mockdispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/pilesim/infra/mqtt"
)

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type pubRecord struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu     sync.Mutex
	pubs   []pubRecord
	pubErr error
}

func (f *fakeClient) IsConnected() bool   { return true }
func (f *fakeClient) Connect() paho.Token { return dummyToken{} }
func (f *fakeClient) Disconnect(uint)     {}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return dummyToken{err: f.pubErr}
	}
	f.pubs = append(f.pubs, pubRecord{topic: topic, payload: append([]byte(nil), payload.([]byte)...)})
	return dummyToken{}
}

func (f *fakeClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	return dummyToken{}
}

func (f *fakeClient) published() []pubRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pubRecord, len(f.pubs))
	copy(out, f.pubs)
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestServer(t *testing.T) (*Server, *fakeClient) {
	t.Helper()
	mqttCfg := mqtt.Config{Broker: "tcp://127.0.0.1:1883"}
	mqttCfg.SetDefaults()
	srv, err := NewWithRegistry(Config{Address: "127.0.0.1:0"}, mqttCfg, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	cli := &fakeClient{}
	srv.cli = cli
	return srv, cli
}

func feedState(srv *Server, st mqtt.StateMessage) {
	payload, _ := json.Marshal(st)
	srv.onState(nil, fakeMessage{topic: "pilesim/pile/" + st.PileID + "/state", payload: payload})
}

func feedEvent(srv *Server, ev mqtt.EventMessage) {
	payload, _ := json.Marshal(ev)
	srv.onEvent(nil, fakeMessage{topic: "pilesim/pile/" + ev.PileID + "/event", payload: payload})
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestServer_Ping(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/dispatch/ping")
	if err != nil {
		t.Fatalf("get ping: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Fatalf("expected pong, got %q", body)
	}
}

func TestServer_PilesFromStateAndEvents(t *testing.T) {
	srv, _ := newTestServer(t)

	feedState(srv, mqtt.StateMessage{State: mqtt.StateOnline, PileID: "pile-a", ChargeType: "F", PowerKW: 30, Capacity: 2, AllowInterrupt: true})
	feedState(srv, mqtt.StateMessage{State: mqtt.StateOnline, PileID: "pile-b", ChargeType: "T", PowerKW: 7})
	feedState(srv, mqtt.StateMessage{State: mqtt.StateOffline, PileID: "pile-b"})
	feedEvent(srv, mqtt.EventMessage{Event: "admitted", PileID: "pile-a", RequestID: "req-1"})
	feedEvent(srv, mqtt.EventMessage{Event: "completed", PileID: "pile-a", RequestID: "req-1", EnergyKWh: 30})
	feedEvent(srv, mqtt.EventMessage{Event: "rejected", PileID: "pile-b", RequestID: "req-2"})

	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/dispatch/piles")
	if err != nil {
		t.Fatalf("get piles: %v", err)
	}
	defer resp.Body.Close()
	var piles []PileView
	if err := json.NewDecoder(resp.Body).Decode(&piles); err != nil {
		t.Fatalf("decode piles: %v", err)
	}
	if len(piles) != 2 {
		t.Fatalf("expected 2 piles, got %d", len(piles))
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"first_id", piles[0].PileID, "pile-a"},
		{"first_online", piles[0].Online, true},
		{"first_charge_type", piles[0].ChargeType, "F"},
		{"first_power", piles[0].PowerKW, 30.0},
		{"first_capacity", piles[0].Capacity, 2},
		{"first_allow_interrupt", piles[0].AllowInterrupt, true},
		{"first_last_event", piles[0].LastEvent, "completed"},
		{"second_id", piles[1].PileID, "pile-b"},
		{"second_online", piles[1].Online, false},
		{"second_last_event", piles[1].LastEvent, "rejected"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}

	var events []mqtt.EventMessage
	resp, err = http.Get(ts.URL + "/dispatch/events")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	resp, err = http.Get(ts.URL + "/dispatch/events?pile_id=pile-a")
	if err != nil {
		t.Fatalf("get filtered events: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode filtered events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for pile-a, got %d", len(events))
	}
	for _, ev := range events {
		if ev.PileID != "pile-a" {
			t.Errorf("expected only pile-a events, got %s", ev.PileID)
		}
	}
}

func TestServer_EventHistoryBounded(t *testing.T) {
	srv, _ := newTestServer(t)
	for i := 0; i < eventHistory+25; i++ {
		feedEvent(srv, mqtt.EventMessage{Event: "progress", PileID: "pile-a", RequestID: fmt.Sprintf("req-%d", i)})
	}
	srv.mu.Lock()
	n := len(srv.events)
	last := srv.events[len(srv.events)-1].RequestID
	srv.mu.Unlock()
	if n != eventHistory {
		t.Fatalf("expected %d retained events, got %d", eventHistory, n)
	}
	if last != fmt.Sprintf("req-%d", eventHistory+24) {
		t.Fatalf("expected newest event retained, got %s", last)
	}
}

func TestServer_DecodeFailuresCounted(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.onState(nil, fakeMessage{topic: "pilesim/pile/x/state", payload: []byte("{bad")})
	srv.onEvent(nil, fakeMessage{topic: "pilesim/pile/x/event", payload: []byte(`{"event":"admitted"}`)})

	if n := len(srv.piles); n != 0 {
		t.Fatalf("expected no piles from bad payloads, got %d", n)
	}
	if v := testutil.ToFloat64(srv.decodeFailures); v != 2 {
		t.Fatalf("expected 2 decode failures, got %v", v)
	}
}

func TestServer_RequestPublishesCommand(t *testing.T) {
	srv, cli := newTestServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/dispatch/request", `{"pile_id":"pile-a","charge_type":"T","requested_kwh":12}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var ack map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack["id"] == "" || ack["pile_id"] != "pile-a" {
		t.Fatalf("unexpected ack: %v", ack)
	}

	pubs := cli.published()
	if len(pubs) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pubs))
	}
	if pubs[0].topic != "pilesim/pile/pile-a/command" {
		t.Fatalf("unexpected topic %s", pubs[0].topic)
	}
	var cmd mqtt.Command
	if err := json.Unmarshal(pubs[0].payload, &cmd); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if cmd.Type != mqtt.CmdNew || cmd.Request == nil {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd.Request.ID != ack["id"] || cmd.Request.ChargeType != "T" || cmd.Request.RequestedKWh != 12 {
		t.Fatalf("unexpected request: %+v", cmd.Request)
	}
	if v := testutil.ToFloat64(srv.commandsTotal.WithLabelValues(mqtt.CmdNew)); v != 1 {
		t.Fatalf("expected 1 new command counted, got %v", v)
	}
}

func TestServer_RequestValidation(t *testing.T) {
	srv, cli := newTestServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing pile", `{"requested_kwh":10}`, http.StatusBadRequest},
		{"zero kwh", `{"pile_id":"p","requested_kwh":0}`, http.StatusBadRequest},
		{"negative kwh", `{"pile_id":"p","requested_kwh":-4}`, http.StatusBadRequest},
		{"bad charge type", `{"pile_id":"p","charge_type":"X","requested_kwh":10}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/dispatch/request", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}

	resp, err := http.Get(ts.URL + "/dispatch/request")
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", resp.StatusCode)
	}

	if pubs := cli.published(); len(pubs) != 0 {
		t.Fatalf("expected no publishes, got %d", len(pubs))
	}
}

func TestServer_CancelFaultCloseOpen(t *testing.T) {
	srv, cli := newTestServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	calls := []struct {
		path string
		body string
		typ  string
	}{
		{"/dispatch/cancel", `{"pile_id":"p","id":"req-1"}`, mqtt.CmdCancel},
		{"/dispatch/fault", `{"pile_id":"p","reason":"smoke"}`, mqtt.CmdFault},
		{"/dispatch/close", `{"pile_id":"p"}`, mqtt.CmdClose},
		{"/dispatch/open", `{"pile_id":"p"}`, mqtt.CmdOpen},
	}
	for _, c := range calls {
		resp := postJSON(t, ts.URL+c.path, c.body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("%s: expected 202, got %d", c.path, resp.StatusCode)
		}
	}

	resp := postJSON(t, ts.URL+"/dispatch/cancel", `{"pile_id":"p"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("cancel without id: expected 400, got %d", resp.StatusCode)
	}

	pubs := cli.published()
	if len(pubs) != len(calls) {
		t.Fatalf("expected %d publishes, got %d", len(calls), len(pubs))
	}
	for i, c := range calls {
		var cmd mqtt.Command
		if err := json.Unmarshal(pubs[i].payload, &cmd); err != nil {
			t.Fatalf("decode command %d: %v", i, err)
		}
		if cmd.Type != c.typ {
			t.Errorf("publish %d: expected type %s, got %s", i, c.typ, cmd.Type)
		}
	}
	var cancel mqtt.Command
	if err := json.Unmarshal(pubs[0].payload, &cancel); err != nil {
		t.Fatalf("decode cancel: %v", err)
	}
	if cancel.ID != "req-1" {
		t.Fatalf("expected cancel id req-1, got %s", cancel.ID)
	}
	var fault mqtt.Command
	if err := json.Unmarshal(pubs[1].payload, &fault); err != nil {
		t.Fatalf("decode fault: %v", err)
	}
	if fault.Reason != "smoke" {
		t.Fatalf("expected fault reason smoke, got %s", fault.Reason)
	}
}

func TestServer_PublishErrorReturnsBadGateway(t *testing.T) {
	srv, cli := newTestServer(t)
	cli.pubErr = errors.New("broker gone")
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/dispatch/request", `{"pile_id":"p","requested_kwh":10}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestNew_InvalidMQTTConfig(t *testing.T) {
	if _, err := New(Config{}, mqtt.Config{}); err == nil {
		t.Fatal("expected error for missing broker")
	}
}
