package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the bridge
// and the tooling around it.
type Config struct {
	// Hostname or IP address on which the bridge will listen for connections.
	Hostname string `mapstructure:"hostname"`

	Bridge struct {
		// Port on which the bridge will listen. 0 picks a free port, which is
		// logged on startup.
		Port int `mapstructure:"port"`
		// Upper bound on how long a single response flush may block.
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		// Repeated warnings about the same unsupported opcode inside this window
		// are demoted to debug logs.
		UnknownOpcodeWindow time.Duration `mapstructure:"unknown_opcode_window"`
	} `mapstructure:"bridge"`

	Simulation struct {
		// Time between host loop ticks.
		TickInterval time.Duration `mapstructure:"tick_interval"`
	} `mapstructure:"simulation"`

	Logging struct {
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
	} `mapstructure:"logging"`

	Trace struct {
		// Record client sessions and register accesses.
		Enabled bool `mapstructure:"enabled"`
		// Database engine, sqlite or postgres.
		Engine string `mapstructure:"engine"`
		// SQLite database file.
		Filename string `mapstructure:"filename"`
		// Postgres connection string.
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"trace"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		Enabled bool `mapstructure:"enabled"`
		// Address of the HTTP server exposing metrics and pprof.
		HTTPAddress string `mapstructure:"http_address"`
		// Log every received batch and response.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "PJET"

var defaults = map[string]interface{}{
	"hostname":                           "0.0.0.0",
	"bridge.port":                        0,
	"bridge.write_timeout":               5 * time.Second,
	"bridge.unknown_opcode_window":       10 * time.Second,
	"simulation.tick_interval":           time.Millisecond,
	"logging.log_level":                  "info",
	"logging.log_file_path":              "",
	"trace.enabled":                      false,
	"trace.engine":                       "sqlite",
	"trace.filename":                     "pjet-trace.db",
	"trace.dsn":                          "",
	"debugging.enabled":                  false,
	"debugging.http_address":             "localhost:4040",
	"debugging.packet_logging_enabled":   false,
	"debugging.database_logging_enabled": false,
}

// LoadConfig initializes v with the defaults, the contents of the config file
// under configPath (if there is one), and any PJET_ environment overrides.
func LoadConfig(v *viper.Viper, configPath string) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, bridge.port can be set using: <envVarPrefix>_BRIDGE_PORT
	for _, k := range v.AllKeys() {
		envVar := envVarPrefix + "_" + strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVar, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	return config, nil
}

// BridgeAddress returns the address the bridge listens on.
func (c *Config) BridgeAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Bridge.Port)
}
