// Package config handles AirCtrlMqtt configuration loading.
//
// Settings come from an optional YAML file and are then overridden by
// environment variables, so a container deployment can run without any
// file at all.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoConfigFile is returned by [FindConfig] when no explicit path was
// given and none of the default search paths exist.
var ErrNoConfigFile = errors.New("no config file found")

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/airctrlmqtt/config.yaml, /etc/airctrlmqtt/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "airctrlmqtt", "config.yaml"))
	}

	paths = append(paths, "/etc/airctrlmqtt/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error wrapping [ErrNoConfigFile] if nothing
// was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfigFile, DefaultSearchPaths())
}

// Config holds all AirCtrlMqtt configuration.
type Config struct {
	MQTT          MQTTConfig          `yaml:"mqtt"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Sensor        SensorConfig        `yaml:"sensor"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	DataDir       string              `yaml:"data_dir"`
	LogLevel      string              `yaml:"log_level"`
	LogFormat     string              `yaml:"log_format"`
}

// MQTTConfig defines the broker session and the sensor-data topic.
type MQTTConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	// Username and Password are only sent when both are set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

// HasCredentials reports whether a complete credential pair is configured.
func (c MQTTConfig) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// HomeAssistantConfig controls MQTT device discovery.
type HomeAssistantConfig struct {
	DiscoveryEnabled bool   `yaml:"discovery_enabled"`
	DiscoveryPrefix  string `yaml:"discovery_prefix"`
	// ObjectID is the stable device identifier. When empty, one is
	// derived from the persisted instance ID in DataDir.
	ObjectID string `yaml:"object_id"`
}

// SensorConfig selects the hidraw node. Empty means auto-detect.
type SensorConfig struct {
	Device string `yaml:"device"`
}

// MetricsConfig defines the optional Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. ":9273"; empty disables
}

// Default returns a configuration matching the historical environment
// defaults.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "airctrl_client",
			Topic:    "airctrl/sensors",
		},
		HomeAssistant: HomeAssistantConfig{
			DiscoveryEnabled: true,
			DiscoveryPrefix:  "homeassistant",
		},
		DataDir:   "data",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads configuration from a YAML file on top of [Default].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up through
// getenv. Unset or empty variables leave the field untouched. A malformed
// MQTT_PORT or HA_DISCOVERY_ENABLED is an error rather than a silent
// fallback.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	str("MQTT_HOST", &c.MQTT.Host)
	str("MQTT_CLIENT_ID", &c.MQTT.ClientID)
	str("MQTT_TOPIC", &c.MQTT.Topic)
	str("MQTT_USERNAME", &c.MQTT.Username)
	str("MQTT_PASSWORD", &c.MQTT.Password)
	str("HA_DISCOVERY_PREFIX", &c.HomeAssistant.DiscoveryPrefix)
	str("HA_OBJECT_ID", &c.HomeAssistant.ObjectID)
	str("SENSOR_DEVICE", &c.Sensor.Device)
	str("METRICS_LISTEN", &c.Metrics.Listen)
	str("DATA_DIR", &c.DataDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if v := getenv("MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MQTT_PORT must be a valid port number: %q", v)
		}
		c.MQTT.Port = port
	}

	if v := getenv("MQTT_TLS"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MQTT_TLS must be a boolean: %q", v)
		}
		c.MQTT.TLS = b
	}

	if v := getenv("HA_DISCOVERY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("HA_DISCOVERY_ENABLED must be a boolean: %q", v)
		}
		c.HomeAssistant.DiscoveryEnabled = b
	}

	return nil
}

// Validate checks the configuration for values that would only fail
// later at connect time.
func (c *Config) Validate() error {
	if c.MQTT.Host == "" {
		return fmt.Errorf("mqtt.host must not be empty")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port %d out of range (1-65535)", c.MQTT.Port)
	}
	if c.MQTT.ClientID == "" {
		return fmt.Errorf("mqtt.client_id must not be empty")
	}
	if c.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic must not be empty")
	}
	if strings.ContainsAny(c.MQTT.Topic, "+#") {
		return fmt.Errorf("mqtt.topic %q must not contain wildcards", c.MQTT.Topic)
	}
	if (c.MQTT.Username == "") != (c.MQTT.Password == "") {
		return fmt.Errorf("mqtt.username and mqtt.password must be set together")
	}
	if c.HomeAssistant.DiscoveryEnabled && c.HomeAssistant.DiscoveryPrefix == "" {
		return fmt.Errorf("homeassistant.discovery_prefix must not be empty when discovery is enabled")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := ParseLogFormat(c.LogFormat); err != nil {
		return err
	}
	return nil
}

// Resolve finds and loads the config file (if any), applies environment
// overrides and validates the result. It returns the path that was
// loaded, or "" when running on defaults plus environment.
func Resolve(explicit string, getenv func(string) string) (*Config, string, error) {
	cfg := Default()

	path, err := FindConfig(explicit)
	switch {
	case err == nil:
		cfg, err = Load(path)
		if err != nil {
			return nil, "", err
		}
	case errors.Is(err, ErrNoConfigFile):
		path = ""
	default:
		return nil, "", err
	}

	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}
