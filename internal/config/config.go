package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string           `yaml:"env" env-default:"local"`
	Simulation  SimulationConfig `yaml:"simulation"`
	Output      OutputConfig     `yaml:"output"`
	SensorsPath string           `yaml:"sensors_path" env:"SENSORS_PATH"`
	Store       StoreConfig      `yaml:"store"`
	HTTP        HTTPSinkConfig   `yaml:"http"`
	Kafka       KafkaSinkConfig  `yaml:"kafka"`
	MQTT        MQTTSinkConfig   `yaml:"mqtt"`
	Health      HealthConfig     `yaml:"health"`
	Log         LogConfig        `yaml:"log"`
}

type SimulationConfig struct {
	Steps           int           `yaml:"steps" env:"SIM_STEPS" env-default:"200"`
	Interval        time.Duration `yaml:"interval" env:"SIM_INTERVAL" env-default:"1s"`
	Seed            uint64        `yaml:"seed" env:"SIM_SEED" env-default:"42"`
	Unseeded        bool          `yaml:"unseeded" env:"SIM_UNSEEDED" env-default:"false"`
	// BaseTimestampMs 0 picks a fixed epoch for seeded runs and the wall
	// clock for unseeded ones; -1 always picks the wall clock.
	BaseTimestampMs int64 `yaml:"base_timestamp_ms" env:"SIM_BASE_TIMESTAMP_MS"`
	Realtime        bool          `yaml:"realtime" env:"SIM_REALTIME" env-default:"false"`
}

// IntervalMs is exact for intervals that passed validate.
func (s SimulationConfig) IntervalMs() int64 {
	return s.Interval.Milliseconds()
}

var ErrInvalidInterval = errors.New("simulation interval must be a positive whole number of milliseconds")

func (c *Config) validate() error {
	iv := c.Simulation.Interval
	if iv < time.Millisecond || iv%time.Millisecond != 0 {
		return fmt.Errorf("%w, got %s", ErrInvalidInterval, iv)
	}
	return nil
}

type OutputConfig struct {
	Path      string `yaml:"path" env:"OUTPUT_PATH" env-default:"leituras_stream.csv"`
	Delimiter string `yaml:"delimiter" env:"OUTPUT_DELIMITER" env-default:";"`
	// SkipManifest suppresses the <path>.manifest.yaml sidecar.
	SkipManifest bool `yaml:"skip_manifest"`
}

type StoreConfig struct {
	Enabled bool          `yaml:"enabled" env-default:"false"`
	Path    string        `yaml:"path" env-default:"data/sensorsim.db"`
	MaxAge  time.Duration `yaml:"max_age" env-default:"168h"`
	// MaxRows degrades /health once the store holds more readings; 0 disables it.
	MaxRows int64 `yaml:"max_rows" env-default:"1000000"`
}

type HTTPSinkConfig struct {
	Enabled  bool          `yaml:"enabled" env-default:"false"`
	URL      string        `yaml:"url"`
	Token    string        `yaml:"token" env:"HTTP_SINK_TOKEN"`
	Encoding string        `yaml:"encoding" env-default:"json"`
	Timeout  time.Duration `yaml:"timeout" env-default:"10s"`
	Retry    RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env-default:"5"`
	InitialDelay time.Duration `yaml:"initial_delay" env-default:"500ms"`
	MaxDelay     time.Duration `yaml:"max_delay" env-default:"10s"`
}

type KafkaSinkConfig struct {
	Enabled bool     `yaml:"enabled" env-default:"false"`
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env-default:"sensor.readings"`
}

type MQTTSinkConfig struct {
	Enabled     bool          `yaml:"enabled" env-default:"false"`
	Broker      string        `yaml:"broker" env:"MQTT_BROKER" env-default:"tcp://localhost:1883"`
	ClientID    string        `yaml:"client_id" env-default:"sensorsim"`
	TopicPrefix string        `yaml:"topic_prefix" env-default:"sensorsim/readings"`
	QoS         int           `yaml:"qos" env-default:"1"`
	Timeout     time.Duration `yaml:"timeout" env-default:"5s"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled" env-default:"false"`
	Address string `yaml:"address" env-default:":8080"`
}

type LogConfig struct {
	Level  string `yaml:"level" env-default:"info"`
	Format string `yaml:"format" env-default:"json"`
}

// MustLoad reads configPath, CONFIG_PATH or config/config.yaml in that order.
// With no file at all the environment and the defaults above are used.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
		explicit = configPath != ""
	}

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	var cfg Config
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if explicit {
			return nil, &LoadError{Path: configPath, Err: err}
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, &LoadError{Err: err}
		}
		configPath = ""
	} else if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, &LoadError{Path: configPath, Err: err}
	}

	if err := cfg.validate(); err != nil {
		return nil, &LoadError{Path: configPath, Err: err}
	}

	return &cfg, nil
}

type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return "failed to read config from environment: " + e.Err.Error()
	}
	return "failed to read config " + e.Path + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
