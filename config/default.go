package config

import (
	"errors"
	"fmt"
	"os"
)

// defaultYAML is written on first run when no configuration file exists.
const defaultYAML = `# pilesim configuration. Omitted keys fall back to built-in defaults and any
# key can be overridden with a PILESIM_ environment variable, for example
# PILESIM_MQTT__BROKER=tcp://broker:1883.
mqtt:
  broker: tcp://localhost:1883
  client_id: pilesim
  topic_prefix: pilesim

clock:
  time_zone: Asia/Shanghai
  speed: 1
  poll_interval_ms: 5000
  # start_time: "2024-01-01T08:00:00+08:00"

tariff:
  path: price.json

piles:
  - id: pile-1
    type: F
    power_kw: 30
    capacity: 2
    allow_interrupt: true

# fleet:
#   count: 10
#   id_prefix: pile
#   defaults:
#     type: F
#     power_kw: 30
#     capacity: 2

metrics:
  prometheus_enabled: true
  prometheus_port: ":2112"

session_log:
  enabled: true
  path: sessions.jsonl

faults:
  enabled: false
  mean_time_between_s: 600

status_api:
  enabled: true
  address: ":8080"
`

// LoadOrCreate behaves like Load but writes the default configuration file
// first when path does not exist. The second return reports whether the
// file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if werr := os.WriteFile(path, []byte(defaultYAML), 0o644); werr != nil {
			return nil, false, fmt.Errorf("write default config: %w", werr)
		}
		cfg, lerr := Load(path)
		return cfg, true, lerr
	}
	cfg, err := Load(path)
	return cfg, false, err
}
