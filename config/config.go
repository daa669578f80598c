// Package config loads the server configuration from flags, environment,
// an optional config.toml and defaults, in that order of priority.
//
// Environment variables use the ORDERENGINE_ prefix with dots replaced by
// underscores: server.port -> ORDERENGINE_SERVER_PORT. A .env file in the
// working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "ORDERENGINE"

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Log            LogConfig            `mapstructure:"log"`
	CORS           CORSConfig           `mapstructure:"cors"`
	StatusGroups   StatusGroupsConfig   `mapstructure:"status_groups"`
	Demo           DemoConfig           `mapstructure:"demo"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3 | postgres
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type StatusGroupsConfig struct {
	// File is an optional JSON document replacing the built-in groups.
	File string `mapstructure:"file"`
}

type DemoConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ReconciliationConfig controls the periodic balance audit.
type ReconciliationConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Flags declares the command-line flags Load understands.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.String("config", "", "Path to a config.toml file")
	fs.String("host", "", "HTTP listen host")
	fs.Int("port", 8080, "HTTP listen port")
	fs.String("db-driver", "sqlite3", "Database driver (sqlite3 or postgres)")
	fs.String("db", "./data/orders.db", "Database DSN (file path for sqlite3)")
	fs.String("log-level", "info", "Log level")
	fs.Bool("demo", false, "Enable demo scenario endpoints")
	return fs
}

var flagKeys = map[string]string{
	"host":      "server.host",
	"port":      "server.port",
	"db-driver": "database.driver",
	"db":        "database.dsn",
	"log-level": "log.level",
	"demo":      "demo.enabled",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "./data/orders.db")
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("status_groups.file", "")
	v.SetDefault("demo.enabled", false)
	v.SetDefault("reconciliation.enabled", true)
	v.SetDefault("reconciliation.interval", time.Hour)
}

// Load reads the configuration. fs may be nil; when given it must already
// be parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readConfigFile reads --config when given, otherwise an optional
// config.toml from ./config or the working directory.
func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config %s: %w", path, err)
			}
			return nil
		}
	}

	name := "config"
	if env := os.Getenv("CONFIG_NAME"); env != "" {
		name = env
	}
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth is enabled")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Reconciliation.Enabled && c.Reconciliation.Interval <= 0 {
		return fmt.Errorf("reconciliation.interval must be positive, got %s", c.Reconciliation.Interval)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(level)
	}
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
