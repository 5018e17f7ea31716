package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Setup modes for a Synapse configuration entry.
const (
	// SetupDynamic prefers the app's published configuration over static app data
	// and keeps listening for registration events.
	SetupDynamic = "dynamic"

	// SetupStatic only ever reads static app data at setup.
	SetupStatic = "static"
)

// Dispatch modes for outbound light actions.
const (
	// DispatchBridge hands actions to the bridge's own emit method.
	DispatchBridge = "bridge"

	// DispatchBus fires actions directly onto the host event bus.
	DispatchBus = "bus"
)

// Config is the root configuration structure for the Synapse service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Synapse   SynapseConfig   `yaml:"synapse"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl"` // minutes
}

// SynapseConfig lists the Synapse apps (configuration entries) served by this instance.
type SynapseConfig struct {
	Entries []EntryConfig `yaml:"entries"`
}

// EntryConfig describes a single configuration entry, i.e. one external app
// and the bridge that mediates it.
type EntryConfig struct {
	// ID is the configuration entry identifier.
	ID string `yaml:"id"`

	// AppName scopes bus event names for this app.
	AppName string `yaml:"app_name"`

	// MetadataUniqueID is the stable identifier the app reports in its
	// configuration and registration events.
	MetadataUniqueID string `yaml:"metadata_unique_id"`

	// AppDataFile is an optional YAML file with static app data
	// (category name -> list of descriptors).
	AppDataFile string `yaml:"app_data_file"`

	// Setup is "dynamic" (default) or "static".
	Setup string `yaml:"setup"`

	// Dispatch is "bridge" (default) or "bus".
	Dispatch string `yaml:"dispatch"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SYNAPSE_SECTION_KEY
// For example: SYNAPSE_DATABASE_PATH, SYNAPSE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	cfg.applyEntryDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/synapse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "synapse",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8124,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 60 * 24 * 30,
			},
		},
	}
}

// envStrings maps SYNAPSE_* variables onto string settings.
func envStrings(cfg *Config) map[string]*string {
	return map[string]*string{
		"SYNAPSE_DATABASE_PATH":  &cfg.Database.Path,
		"SYNAPSE_MQTT_HOST":      &cfg.MQTT.Broker.Host,
		"SYNAPSE_MQTT_USERNAME":  &cfg.MQTT.Auth.Username,
		"SYNAPSE_MQTT_PASSWORD":  &cfg.MQTT.Auth.Password,
		"SYNAPSE_API_HOST":       &cfg.API.Host,
		"SYNAPSE_INFLUXDB_URL":   &cfg.InfluxDB.URL,
		"SYNAPSE_INFLUXDB_TOKEN": &cfg.InfluxDB.Token,
		"SYNAPSE_JWT_SECRET":     &cfg.Security.JWT.Secret,
		"SYNAPSE_LOG_LEVEL":      &cfg.Logging.Level,
	}
}

// envInts maps SYNAPSE_* variables onto integer settings.
func envInts(cfg *Config) map[string]*int {
	return map[string]*int{
		"SYNAPSE_MQTT_PORT": &cfg.MQTT.Broker.Port,
		"SYNAPSE_API_PORT":  &cfg.API.Port,
	}
}

// applyEnvOverrides copies non-empty SYNAPSE_* variables over cfg. Every
// malformed number or flag is reported.
func applyEnvOverrides(cfg *Config) error {
	for name, dst := range envStrings(cfg) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	var errs []error
	for name, dst := range envInts(cfg) {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*dst = n
	}

	if v := os.Getenv("SYNAPSE_INFLUXDB_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SYNAPSE_INFLUXDB_ENABLED: %w", err))
		} else {
			cfg.InfluxDB.Enabled = b
		}
	}

	return errors.Join(errs...)
}

// applyEntryDefaults fills in optional per-entry fields.
func (c *Config) applyEntryDefaults() {
	for i := range c.Synapse.Entries {
		e := &c.Synapse.Entries[i]
		if e.Setup == "" {
			e.Setup = SetupDynamic
		}
		if e.Dispatch == "" {
			e.Dispatch = DispatchBridge
		}
		if e.AppName == "" {
			e.AppName = e.ID
		}
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set SYNAPSE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	seen := make(map[string]bool, len(c.Synapse.Entries))
	for i, e := range c.Synapse.Entries {
		prefix := fmt.Sprintf("synapse.entries[%d]", i)
		if e.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if seen[e.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, e.ID))
		}
		seen[e.ID] = true

		if e.MetadataUniqueID == "" {
			errs = append(errs, prefix+".metadata_unique_id is required")
		}
		if strings.ContainsAny(e.AppName, "+#/") {
			errs = append(errs, prefix+".app_name must not contain '+', '#' or '/'")
		}
		if e.Setup != SetupDynamic && e.Setup != SetupStatic {
			errs = append(errs, fmt.Sprintf("%s.setup must be %q or %q", prefix, SetupDynamic, SetupStatic))
		}
		if e.Dispatch != DispatchBridge && e.Dispatch != DispatchBus {
			errs = append(errs, fmt.Sprintf("%s.dispatch must be %q or %q", prefix, DispatchBridge, DispatchBus))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
