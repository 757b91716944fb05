// Package config loads the tdma-sim process configuration from file and
// environment through Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/tdma-radio-model/internal/logging"
	"github.com/signalsfoundry/tdma-radio-model/internal/observability"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TDMA_NEM=4 or
// TDMA_EMULATION_SLOTS_PER_FRAME=20.
const EnvPrefix = "TDMA"

// keyDelimiter replaces Viper's default "." so registrar parameter names such
// as "sinrtable.threshold" survive as single map keys.
const keyDelimiter = "::"

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the tdma-sim process configuration.
type Config struct {
	NEM         uint16                      `mapstructure:"nem"`
	MetricsAddr string                      `mapstructure:"metrics_addr"`
	Logging     logging.Config              `mapstructure:"logging"`
	Tracing     observability.TracingConfig `mapstructure:"tracing"`
	Emulation   Emulation                   `mapstructure:"emulation"`

	// Parameters are registrar overrides keyed by parameter name.
	Parameters map[string]string `mapstructure:"parameters"`
}

// Emulation describes the synthetic radio environment around the NEM.
type Emulation struct {
	Mode           string        `mapstructure:"mode"` // realtime | accelerated
	SlotDuration   time.Duration `mapstructure:"slot_duration"`
	SlotsPerFrame  int           `mapstructure:"slots_per_frame"`
	Antennas       int           `mapstructure:"antennas"`
	FrequencyHz    uint64        `mapstructure:"frequency_hz"`
	NoiseFloorDBm  float64       `mapstructure:"noise_floor_dbm"`
	SensitivityDBm float64       `mapstructure:"sensitivity_dbm"`
	FadingDB       float64       `mapstructure:"fading_db"` // peak-to-peak uniform fading
	PacketBytes    int           `mapstructure:"packet_bytes"`
	MaxPacketBytes int           `mapstructure:"max_packet_bytes"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	Seed           int64         `mapstructure:"seed"`
	Transmitters   []Transmitter `mapstructure:"transmitters"`
}

// Transmitter is one remote NEM whose transmissions reach this NEM.
type Transmitter struct {
	NEM        uint16  `mapstructure:"nem"`
	TxPowerDBm float64 `mapstructure:"tx_power_dbm"`
	DistanceKm float64 `mapstructure:"distance_km"`
	DutyCycle  float64 `mapstructure:"duty_cycle"` // probability of transmitting in a slot
	Broadcast  bool    `mapstructure:"broadcast"`
}

func setDefaults(v *viper.Viper) {
	k := func(parts ...string) string { return strings.Join(parts, keyDelimiter) }

	v.SetDefault(k("nem"), 1)
	v.SetDefault(k("metrics_addr"), ":9090")

	v.SetDefault(k("logging", "level"), "info")
	v.SetDefault(k("logging", "format"), "json")
	v.SetDefault(k("logging", "add_source"), false)

	tracing := observability.DefaultTracingConfig()
	v.SetDefault(k("tracing", "enabled"), tracing.Enabled)
	v.SetDefault(k("tracing", "service_name"), tracing.ServiceName)
	v.SetDefault(k("tracing", "exporter"), tracing.Exporter)
	v.SetDefault(k("tracing", "endpoint"), "localhost:4317")
	v.SetDefault(k("tracing", "sample_ratio"), tracing.SampleRatio)

	v.SetDefault(k("emulation", "mode"), "realtime")
	v.SetDefault(k("emulation", "slot_duration"), "1ms")
	v.SetDefault(k("emulation", "slots_per_frame"), 10)
	v.SetDefault(k("emulation", "antennas"), 1)
	v.SetDefault(k("emulation", "frequency_hz"), uint64(2_400_000_000))
	v.SetDefault(k("emulation", "noise_floor_dbm"), -110.0)
	v.SetDefault(k("emulation", "sensitivity_dbm"), -100.0)
	v.SetDefault(k("emulation", "fading_db"), 6.0)
	v.SetDefault(k("emulation", "packet_bytes"), 512)
	v.SetDefault(k("emulation", "max_packet_bytes"), 1500)
	v.SetDefault(k("emulation", "queue_depth"), 64)
	v.SetDefault(k("emulation", "seed"), 1)
	v.SetDefault(k("emulation", "transmitters"), []map[string]any{
		{"nem": 2, "tx_power_dbm": 30.0, "distance_km": 1.0, "duty_cycle": 0.5},
		{"nem": 3, "tx_power_dbm": 30.0, "distance_km": 5.0, "duty_cycle": 0.3, "broadcast": true},
	})
	v.SetDefault(k("parameters"), map[string]string{})
}

// NewViper returns a Viper instance with tdma-sim defaults and environment
// overrides applied.
func NewViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path (any format Viper understands) layered
// over defaults and environment variables. An empty path searches for
// tdma-sim.yaml in the working directory and ./configs; a missing file is not
// an error in that case.
func Load(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tdma-sim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that would otherwise surface as runtime panics or
// silent misbehaviour in the emulator.
func (c *Config) Validate() error {
	var errs []error
	e := c.Emulation

	switch strings.ToLower(e.Mode) {
	case "realtime", "accelerated":
	default:
		errs = append(errs, fmt.Errorf("emulation.mode %q: want realtime or accelerated", e.Mode))
	}
	if e.SlotDuration <= 0 {
		errs = append(errs, errors.New("emulation.slot_duration must be positive"))
	}
	if e.SlotsPerFrame <= 0 {
		errs = append(errs, errors.New("emulation.slots_per_frame must be positive"))
	}
	if e.Antennas <= 0 {
		errs = append(errs, errors.New("emulation.antennas must be positive"))
	}
	if e.FrequencyHz == 0 {
		errs = append(errs, errors.New("emulation.frequency_hz must be positive"))
	}
	if e.PacketBytes <= 0 || e.MaxPacketBytes <= 0 {
		errs = append(errs, errors.New("emulation packet sizes must be positive"))
	}
	if e.QueueDepth <= 0 {
		errs = append(errs, errors.New("emulation.queue_depth must be positive"))
	}
	if e.FadingDB < 0 {
		errs = append(errs, errors.New("emulation.fading_db must not be negative"))
	}
	seen := make(map[uint16]bool)
	for i, tx := range e.Transmitters {
		if tx.NEM == c.NEM {
			errs = append(errs, fmt.Errorf("emulation.transmitters[%d]: nem %d is the local NEM", i, tx.NEM))
		}
		if seen[tx.NEM] {
			errs = append(errs, fmt.Errorf("emulation.transmitters[%d]: duplicate nem %d", i, tx.NEM))
		}
		seen[tx.NEM] = true
		if tx.DutyCycle < 0 || tx.DutyCycle > 1 {
			errs = append(errs, fmt.Errorf("emulation.transmitters[%d]: duty_cycle %v outside [0,1]", i, tx.DutyCycle))
		}
		if tx.DistanceKm < 0 {
			errs = append(errs, fmt.Errorf("emulation.transmitters[%d]: negative distance", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
