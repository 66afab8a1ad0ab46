// Package config loads server settings from a file, the environment and
// command-line flags.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GQLHTTP_SERVER_ADDR.
const EnvPrefix = "GQLHTTP"

// Config is the complete process configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Schema  SchemaConfig  `mapstructure:"schema"`
	Log     LogConfig     `mapstructure:"log"`
	OTel    OTelConfig    `mapstructure:"otel"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Path         string        `mapstructure:"path"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Pretty       bool          `mapstructure:"pretty"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	GraphiQL     bool          `mapstructure:"graphiql"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// SchemaConfig points at the SDL served by the process. An empty File
// serves the built-in demo schema.
type SchemaConfig struct {
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level"`
}

// OTelConfig enables trace export when Endpoint is set.
type OTelConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":          "server.addr",
	"path":          "server.path",
	"pretty":        "server.pretty",
	"graphiql":      "server.graphiql",
	"schema":        "schema.file",
	"log-level":     "log.level",
	"log-env":       "log.env",
	"otel-endpoint": "otel.endpoint",
}

// Load reads configuration from path (optional), GQLHTTP_* environment
// variables and flags, in increasing order of precedence. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gqlhttp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/gqlhttp")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag %s", name)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.path", "/graphql")
	v.SetDefault("server.timeout", "10s")
	v.SetDefault("server.pretty", false)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.graphiql", true)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("schema.file", "")

	v.SetDefault("log.env", "production")
	v.SetDefault("log.level", "info")

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service", "gqlhttp")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the settings that cannot be corrected at runtime.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return errors.Errorf("server.path must start with /: %q", c.Server.Path)
	}
	if c.Server.Timeout < 0 {
		return errors.New("server.timeout must not be negative")
	}
	if c.Server.MaxBodyBytes < 0 {
		return errors.New("server.max_body_bytes must not be negative")
	}
	if c.Metrics.Enabled {
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return errors.Errorf("metrics.path must start with /: %q", c.Metrics.Path)
		}
		if c.Metrics.Path == c.Server.Path {
			return errors.New("metrics.path and server.path must differ")
		}
	}
	if c.OTel.Endpoint != "" && c.OTel.Service == "" {
		return errors.New("otel.service is required when otel.endpoint is set")
	}
	return nil
}
