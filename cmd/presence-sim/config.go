package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config for a simulation run. Every key can be set in the config file or as an environment
// variable, e.g. PRESENCE_DROP_RATE=0.2.
type Config struct {
	BindAddr  string `mapstructure:"bind_addr"`
	ServerURL string `mapstructure:"server_url"`
	// "memory" or a postgres connection string (see lib/pq docs)
	Postgres  string `mapstructure:"postgres"`
	// "json" or "cbor"
	Codec     string `mapstructure:"codec"`

	Rooms          int     `mapstructure:"rooms"`
	ClientsPerRoom int     `mapstructure:"clients_per_room"`
	DropRate       float64 `mapstructure:"drop_rate"`
	LeaveChance    float64 `mapstructure:"leave_chance"`
	Seed           int64   `mapstructure:"seed"`

	Duration          time.Duration `mapstructure:"duration"`
	MoveInterval      time.Duration `mapstructure:"move_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatWorkers  int           `mapstructure:"heartbeat_workers"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	ConvergeTimeout   time.Duration `mapstructure:"converge_timeout"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
	BufferSize        int           `mapstructure:"buffer_size"`

	Prometheus bool   `mapstructure:"prometheus"`
	OTLPURL    string `mapstructure:"otlp_url"`
	OTLPUser   string `mapstructure:"otlp_user"`
	OTLPPass   string `mapstructure:"otlp_pass"`
	SentryDSN  string `mapstructure:"sentry_dsn"`
	Debug      bool   `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bind_addr", ":8090")
	v.SetDefault("server_url", "")
	v.SetDefault("postgres", "memory")
	v.SetDefault("codec", "json")
	v.SetDefault("rooms", 3)
	v.SetDefault("clients_per_room", 5)
	v.SetDefault("drop_rate", 0.1)
	v.SetDefault("leave_chance", 0.05)
	v.SetDefault("seed", 0)
	v.SetDefault("duration", "10s")
	v.SetDefault("move_interval", "200ms")
	v.SetDefault("heartbeat_interval", "1s")
	v.SetDefault("heartbeat_workers", 4)
	v.SetDefault("fetch_timeout", "5s")
	v.SetDefault("converge_timeout", "15s")
	v.SetDefault("idle_ttl", "0s")
	v.SetDefault("buffer_size", 100)
	v.SetDefault("prometheus", false)
	v.SetDefault("otlp_url", "")
	v.SetDefault("otlp_user", "")
	v.SetDefault("otlp_pass", "")
	v.SetDefault("sentry_dsn", "")
	v.SetDefault("debug", false)
}

// LoadConfig reads configFile if it is set, else presence.yaml from the working directory if one
// exists. Environment variables win over the file.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PRESENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("presence")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("LoadConfig: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("LoadConfig: failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DropRate < 0 || c.DropRate >= 1 {
		return fmt.Errorf("drop_rate must be in [0,1), got %v", c.DropRate)
	}
	if c.LeaveChance < 0 || c.LeaveChance > 1 {
		return fmt.Errorf("leave_chance must be in [0,1], got %v", c.LeaveChance)
	}
	if c.Rooms <= 0 || c.ClientsPerRoom <= 0 {
		return fmt.Errorf("rooms and clients_per_room must be positive")
	}
	if c.MoveInterval <= 0 || c.HeartbeatInterval <= 0 {
		return fmt.Errorf("move_interval and heartbeat_interval must be positive")
	}
	return nil
}

// BaseURL is where simulated clients reach the server.
func (c *Config) BaseURL() string {
	if c.ServerURL != "" {
		return strings.TrimSuffix(c.ServerURL, "/")
	}
	host := c.BindAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host
}
