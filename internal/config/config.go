// Package config provides configuration loading for go-gesture commands.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then environment overrides. Commands apply CLI flags on top.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default endpoint configuration.
const (
	DefaultHost   = "127.0.0.1"
	DefaultPort   = 9000
	DefaultObject = "drone_grp"
	DefaultTopic  = "gesture/motion"
)

// Config is the full configuration shared by the client and host binaries.
type Config struct {
	Host   string       `yaml:"host"`
	Port   int          `yaml:"port"`
	Client ClientConfig `yaml:"client"`
	Actor  HostConfig   `yaml:"actuator"`
	Log    LogConfig    `yaml:"log"`
}

// ClientConfig configures the gesture client (debouncer + channel).
type ClientConfig struct {
	ConnectTimeout time.Duration     `yaml:"connect_timeout"`
	AutoReconnect  bool              `yaml:"auto_reconnect"`
	Window         int               `yaml:"window"`
	MinInterval    time.Duration     `yaml:"min_interval"`
	FrameInterval  time.Duration     `yaml:"frame_interval"`
	Labels         []string          `yaml:"labels"`
	Commands       map[string]string `yaml:"commands"`
	SerialPort     string            `yaml:"serial_port"`
	SerialBaud     int               `yaml:"serial_baud"`
}

// HostConfig configures the actuator host (receiver + executor + surfaces).
type HostConfig struct {
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	Object       string        `yaml:"object"`
	Tick         time.Duration `yaml:"tick"`
	Step         [3]float64    `yaml:"step"`
	LandFactor   float64       `yaml:"land_factor"`
	LandDuration time.Duration `yaml:"land_duration"`
	HomeSettle   time.Duration `yaml:"home_settle"`
	Home         [3]float64    `yaml:"home"`

	WebPort     string `yaml:"web_port"`
	JournalPath string `yaml:"journal_path"`
	MQTTBroker  string `yaml:"mqtt_broker"`
	MQTTTopic   string `yaml:"mqtt_topic"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultLabels is the classifier label order (index = class id).
var DefaultLabels = []string{"Up", "Down", "Back", "Forward", "OK", "Stop", "Left", "Right", "Victory"}

// DefaultCommands maps classifier labels to wire commands.
var DefaultCommands = map[string]string{
	"Up":      "UP",
	"Down":    "DOWN",
	"Back":    "BACK",
	"Forward": "FORWARD",
	"OK":      "LAND",
	"Stop":    "STOP",
	"Left":    "LEFT",
	"Right":   "RIGHT",
	"Victory": "RETURN_HOME",
}

// Default returns the built-in configuration.
func Default() *Config {
	labels := make([]string, len(DefaultLabels))
	copy(labels, DefaultLabels)
	cmds := make(map[string]string, len(DefaultCommands))
	for k, v := range DefaultCommands {
		cmds[k] = v
	}

	return &Config{
		Host: DefaultHost,
		Port: DefaultPort,
		Client: ClientConfig{
			ConnectTimeout: 3 * time.Second,
			AutoReconnect:  true,
			Window:         6,
			MinInterval:    350 * time.Millisecond,
			FrameInterval:  33 * time.Millisecond,
			Labels:         labels,
			Commands:       cmds,
			SerialBaud:     115200,
		},
		Actor: HostConfig{
			ReadTimeout:  time.Second,
			Object:       DefaultObject,
			Tick:         20 * time.Millisecond,
			Step:         [3]float64{0.10, 0.10, 0.10},
			LandFactor:   3,
			LandDuration: 500 * time.Millisecond,
			HomeSettle:   700 * time.Millisecond,
			MQTTTopic:    DefaultTopic,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults and applies env overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// yaml merges into existing maps, so a file mapping replaces the defaults
		defaults := cfg.Client.Commands
		cfg.Client.Commands = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if cfg.Client.Commands == nil {
			cfg.Client.Commands = defaults
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if host := os.Getenv("GESTURE_HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv("GESTURE_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid GESTURE_PORT %q: %w", port, err)
		}
		c.Port = p
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.Actor.MQTTBroker = broker
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be 1-65535, got %d", c.Port))
	}
	if c.Client.Window < 1 {
		errs = append(errs, fmt.Errorf("client.window must be >= 1, got %d", c.Client.Window))
	}
	if c.Client.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("client.connect_timeout must be positive"))
	}
	if c.Client.MinInterval <= 0 {
		errs = append(errs, errors.New("client.min_interval must be positive"))
	}
	if c.Client.FrameInterval <= 0 {
		errs = append(errs, errors.New("client.frame_interval must be positive"))
	}
	if c.Actor.ReadTimeout <= 0 {
		errs = append(errs, errors.New("actuator.read_timeout must be positive"))
	}
	if c.Actor.Tick <= 0 {
		errs = append(errs, errors.New("actuator.tick must be positive"))
	}
	if c.Actor.LandDuration <= 0 || c.Actor.HomeSettle <= 0 {
		errs = append(errs, errors.New("actuator.land_duration and actuator.home_settle must be positive"))
	}
	if c.Actor.Object == "" {
		errs = append(errs, errors.New("actuator.object is required"))
	}
	return errors.Join(errs...)
}

// Addr returns the host:port endpoint.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
