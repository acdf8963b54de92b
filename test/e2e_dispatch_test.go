package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/pilesim/app"
	"github.com/kilianp07/pilesim/config"
	"github.com/kilianp07/pilesim/core/sessionlog"
	"github.com/kilianp07/pilesim/mockdispatch"
	"github.com/kilianp07/pilesim/test/util"
)

func getJSON(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// The full loop: a service loaded from YAML simulates the fleet against a
// real broker while the mock dispatcher drives it over HTTP.
func TestServiceWithMockDispatcherOverMQTT(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto not available: %v", err)
	}
	defer cleanup()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "sessions.jsonl")
	cfgYAML := fmt.Sprintf(`mqtt:
  broker: %s
  client_id: pilesim
  topic_prefix: pilesim
clock:
  time_zone: Asia/Shanghai
  speed: 3600
  start_time: "2026-03-02T06:30:00+08:00"
  poll_interval_ms: 50
tariff:
  path: %s
piles:
  - id: pile-1
    type: F
    power_kw: 30
    capacity: 2
    allow_interrupt: true
metrics:
  prometheus_enabled: false
session_log:
  enabled: true
  path: %s
faults:
  enabled: false
status_api:
  enabled: false
`, broker, filepath.Join(dir, "price.json"), logPath)
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	svc, err := app.New(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer svc.Close()
	defer cancel()
	go func() { _ = svc.Run(runCtx) }()

	mock, err := mockdispatch.New(mockdispatch.Config{Address: "127.0.0.1:0"}, cfg.MQTT)
	if err != nil {
		t.Fatalf("mock dispatcher: %v", err)
	}
	go func() { _ = mock.Start(runCtx) }()
	waitCtx, waitCancel := context.WithTimeout(ctx, util.DispatchServerTimeout)
	defer waitCancel()
	if err := util.WaitForDispatchServer(waitCtx, mock); err != nil {
		t.Fatalf("mock not ready: %v", err)
	}
	base := "http://" + mock.Addr()

	waitCond(t, "pile-1 online at dispatcher", 15*time.Second, func() bool {
		var piles []mockdispatch.PileView
		if err := getJSON(base+"/dispatch/piles", &piles); err != nil {
			return false
		}
		for _, p := range piles {
			if p.PileID == "pile-1" && p.Online {
				return true
			}
		}
		return false
	})

	body := []byte(`{"pile_id":"pile-1","requested_kwh":30}`)
	resp, err := http.Post(base+"/dispatch/request", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post request: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var ack map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	_ = resp.Body.Close()
	reqID := ack["id"]
	if reqID == "" {
		t.Fatal("expected a generated request id")
	}

	waitCond(t, "completed event at dispatcher", 30*time.Second, func() bool {
		var events []struct {
			Event       string  `json:"event"`
			RequestID   string  `json:"request_id"`
			EnergyKWh   float64 `json:"energy_kwh"`
			ServiceCost float64 `json:"service_cost"`
			Status      string  `json:"status"`
		}
		if err := getJSON(base+"/dispatch/events?pile_id=pile-1", &events); err != nil {
			return false
		}
		for _, ev := range events {
			if ev.Event == "completed" && ev.RequestID == reqID {
				if ev.EnergyKWh != 30 {
					t.Errorf("expected 30 kWh, got %v", ev.EnergyKWh)
				}
				if ev.ServiceCost != 24 {
					t.Errorf("expected service cost 24, got %v", ev.ServiceCost)
				}
				if ev.Status != "completed" {
					t.Errorf("expected completed status, got %q", ev.Status)
				}
				return true
			}
		}
		return false
	})

	waitCond(t, "session log record", 10*time.Second, func() bool {
		store, err := sessionlog.NewJSONLStore(logPath)
		if err != nil {
			return false
		}
		recs, err := store.Query(ctx, sessionlog.Query{PileID: "pile-1"})
		if err != nil || len(recs) == 0 {
			return false
		}
		return recs[0].RequestID == reqID && recs[0].Status == "completed"
	})
}
