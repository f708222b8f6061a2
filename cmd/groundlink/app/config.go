package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/groundlink/internal/engine"
	"github.com/roman-kulish/groundlink/internal/events"
	"github.com/roman-kulish/groundlink/internal/link"
)

const (
	defaultRelayAddress  = ":8080"
	defaultDataDirectory = "data"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Link     link.Config   `yaml:"link"`
	Engine   EngineConfig  `yaml:"engine"`
	Relay    RelayConfig   `yaml:"relay"`
	Storage  StorageConfig `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level returns the parsed log level, info when unset
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s'", s.LogLevel)
	}
	return level, nil
}

// EngineConfig represents the ingestion loop timings
type EngineConfig struct {
	ReceiveTimeout      Duration `yaml:"receiveTimeout"`
	HeartbeatTimeout    Duration `yaml:"heartbeatTimeout"`
	ItemRequestInterval Duration `yaml:"itemRequestInterval"`
	ItemRetryTimeout    Duration `yaml:"itemRetryTimeout"`
	ItemRetries         int      `yaml:"itemRetries"` // Zero selects the default, -1 disables re-requests
	Backlog             int      `yaml:"backlog"`     // Events a slow subscriber may lag behind
}

func (c *EngineConfig) Validate() error {
	for name, d := range map[string]*Duration{
		"receiveTimeout":      &c.ReceiveTimeout,
		"heartbeatTimeout":    &c.HeartbeatTimeout,
		"itemRequestInterval": &c.ItemRequestInterval,
		"itemRetryTimeout":    &c.ItemRetryTimeout,
	} {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("engine.%s: %w", name, err)
		}
	}
	if c.ItemRetries < -1 {
		return fmt.Errorf("engine.itemRetries: must be -1 or more: %d", c.ItemRetries)
	}
	if c.Backlog < 0 {
		return fmt.Errorf("engine.backlog: must not be negative: %d", c.Backlog)
	}

	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = Duration(engine.DefaultReceiveTimeout)
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = Duration(engine.DefaultHeartbeatTimeout)
	}
	if c.ItemRequestInterval == 0 {
		c.ItemRequestInterval = Duration(engine.DefaultItemRequestInterval)
	}
	if c.ItemRetryTimeout == 0 {
		c.ItemRetryTimeout = Duration(engine.DefaultItemRetryTimeout)
	}
	if c.ItemRetries == 0 {
		c.ItemRetries = engine.DefaultItemRetries
	}
	if c.Backlog == 0 {
		c.Backlog = events.DefaultBacklog
	}

	if c.HeartbeatTimeout <= c.ReceiveTimeout {
		return fmt.Errorf("engine.heartbeatTimeout: must exceed receiveTimeout (%s)", &c.ReceiveTimeout)
	}
	return nil
}

// Options converts the configuration to engine options
func (c *EngineConfig) Options() []func(e *engine.Engine) {
	return []func(e *engine.Engine){
		engine.WithReceiveTimeout(time.Duration(c.ReceiveTimeout)),
		engine.WithHeartbeatTimeout(time.Duration(c.HeartbeatTimeout)),
		engine.WithItemRequestInterval(time.Duration(c.ItemRequestInterval)),
		engine.WithItemRetry(time.Duration(c.ItemRetryTimeout), c.itemRetries()),
	}
}

// itemRetries is the number of re-request rounds passed to the engine
func (c *EngineConfig) itemRetries() int {
	return max(c.ItemRetries, 0)
}

// RelayConfig represents the websocket relay settings
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

func (c *RelayConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Address == "" {
		c.Address = defaultRelayAddress
	}
	return nil
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

func (c *StorageConfig) Validate() error {
	if c.DataDirectory == "" {
		c.DataDirectory = defaultDataDirectory
	}
	return nil
}

// Validate checks every section and fills defaults
func (c *Config) Validate() error {
	if _, err := c.Settings.Level(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	return errors.Join(
		c.Link.Validate(),
		c.Engine.Validate(),
		c.Relay.Validate(),
		c.Storage.Validate(),
	)
}

// LoadConfig reads and validates the YAML configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML configuration
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Duration is a time.Duration written as a Go duration string, e.g. "500ms"
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d *Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) Validate() error {
	if duration := time.Duration(*d); duration < 0 {
		return fmt.Errorf("app.Duration: must not be negative: %s", duration)
	}
	return nil
}

func (d *Duration) String() string {
	return time.Duration(*d).String()
}
