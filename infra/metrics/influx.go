package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/pilesim/core/metrics"
	"github.com/kilianp07/pilesim/infra/logger"
)

// InfluxSink writes session events to an InfluxDB instance using the official client.
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
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
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

// RecordTransition writes the session state change as line protocol.
func (s *InfluxSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("session_event").
		AddTag("pile_id", ev.PileID).
		AddTag("kind", ev.Kind.String())
	if ev.RequestID != "" {
		p = p.AddTag("request_id", ev.RequestID)
	}
	if ev.ChargeType != "" {
		p = p.AddTag("charge_type", string(ev.ChargeType))
	}
	if ev.Reason != "" {
		p = p.AddTag("reason", ev.Reason)
	}
	p = p.AddField("energy_kwh", round3(ev.EnergyKWh)).
		AddField("energy_cost", round3(ev.EnergyCost)).
		AddField("service_cost", round3(ev.ServiceCost)).
		AddField("waiting", ev.Waiting).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordProgress writes a snapshot of the active session.
func (s *InfluxSink) RecordProgress(ev coremetrics.ProgressEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("charge_progress").
		AddTag("pile_id", ev.PileID).
		AddTag("request_id", ev.RequestID).
		AddTag("charge_type", string(ev.ChargeType)).
		AddField("energy_kwh", round3(ev.EnergyKWh)).
		AddField("remaining_kwh", round3(ev.RemainingKWh)).
		AddField("energy_cost", round3(ev.EnergyCost)).
		AddField("service_cost", round3(ev.ServiceCost)).
		AddField("waiting", ev.Waiting).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
