package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultOpeningStory is the first entry of the shared story log.
const DefaultOpeningStory = "You wake up on ocean beach. It's morning, and the sun is just starting to rise. " +
	"You know what you must do. Marc Benioff must fall; you must become CEO of Salesforce."

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Session   SessionConfig   `mapstructure:"session"`
	Market    MarketConfig    `mapstructure:"market"`
	Narrative NarrativeConfig `mapstructure:"narrative"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	HTTPAddress   string        `mapstructure:"http_address"`
	RPCAddress    string        `mapstructure:"rpc_address"`
	HealthAddress string        `mapstructure:"health_address"`
	Heartbeat     time.Duration `mapstructure:"heartbeat"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	SendBuffer    int           `mapstructure:"send_buffer"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type SessionConfig struct {
	StartingCash       float64 `mapstructure:"starting_cash"`
	OpeningStory       string  `mapstructure:"opening_story"`
	ExplicitRejections bool    `mapstructure:"explicit_rejections"`
}

// MarketConfig holds the price process constants:
// delta = Reversion*(Mean-current) + Momentum*(current-previous) + Volatility*z.
type MarketConfig struct {
	InitialPrice float64       `mapstructure:"initial_price"`
	Mean         float64       `mapstructure:"mean"`
	Reversion    float64       `mapstructure:"reversion"`
	Momentum     float64       `mapstructure:"momentum"`
	Volatility   float64       `mapstructure:"volatility"`
	Interval     time.Duration `mapstructure:"interval"`
	HistorySize  int           `mapstructure:"history_size"`
}

type NarrativeConfig struct {
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type JournalConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Buffer int    `mapstructure:"buffer"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", "")
	v.SetDefault("server.health_address", "")
	v.SetDefault("server.heartbeat", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Second)
	v.SetDefault("server.send_buffer", 64)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("session.starting_cash", 1000.0)
	v.SetDefault("session.opening_story", DefaultOpeningStory)
	v.SetDefault("session.explicit_rejections", false)

	v.SetDefault("market.initial_price", 100.0)
	v.SetDefault("market.mean", 100.0)
	v.SetDefault("market.reversion", 0.05)
	v.SetDefault("market.momentum", 0.1)
	v.SetDefault("market.volatility", 1.0)
	v.SetDefault("market.interval", time.Second)
	v.SetDefault("market.history_size", 60)

	v.SetDefault("narrative.provider", "openai")
	v.SetDefault("narrative.api_key", "")
	v.SetDefault("narrative.base_url", "")
	v.SetDefault("narrative.model", "gpt-4")
	v.SetDefault("narrative.timeout", time.Duration(0))

	v.SetDefault("journal.driver", "none")
	v.SetDefault("journal.dsn", "")
	v.SetDefault("journal.buffer", 256)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "storyserver")

	v.SetDefault("metrics.namespace", "storyserver")
}

// LoadConfig reads config.yaml from path, if present, and applies STORYSERVER_*
// environment overrides (e.g. STORYSERVER_NARRATIVE_API_KEY).
func LoadConfig(path string) (config *Config, err error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("storyserver")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	config = &Config{}
	if err = v.Unmarshal(config); err != nil {
		return nil, err
	}
	if config.Narrative.APIKey == "" {
		// The conventional variable name is honoured as a fallback.
		v.BindEnv("narrative.openai_api_key", "OPENAI_API_KEY")
		config.Narrative.APIKey = v.GetString("narrative.openai_api_key")
	}
	return config, nil
}
