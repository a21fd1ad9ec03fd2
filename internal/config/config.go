// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Scrape ScrapeConfig `yaml:"scrape" mapstructure:"scrape"`
	Proxy  ProxyConfig  `yaml:"proxy" mapstructure:"proxy"`
	Export ExportConfig `yaml:"export" mapstructure:"export"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ScrapeConfig configures the scrape walk and the fetcher.
type ScrapeConfig struct {
	BaseURL      string   `yaml:"base_url" mapstructure:"base_url"`
	Movies       int      `yaml:"movies" mapstructure:"movies"`
	Genres       []string `yaml:"genres" mapstructure:"genres"`
	DelayMinSecs float64  `yaml:"delay_min_secs" mapstructure:"delay_min_secs"`
	DelayMaxSecs float64  `yaml:"delay_max_secs" mapstructure:"delay_max_secs"`
	TimeoutSecs  int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts  int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	CookieFile   string   `yaml:"cookie_file" mapstructure:"cookie_file"`
}

// ProxyConfig configures the per-country egress pool. Credentials come from
// PROXY_USER / PROXY_PASS / PROXY_GATEWAY environment variables, never from
// the config file.
type ProxyConfig struct {
	Enabled   bool     `yaml:"enabled" mapstructure:"enabled"`
	Countries []string `yaml:"countries" mapstructure:"countries"`
	IPLookup  string   `yaml:"ip_lookup" mapstructure:"ip_lookup"`
	GeoLookup string   `yaml:"geo_lookup" mapstructure:"geo_lookup"`
}

// ExportConfig configures the flat-file exporters.
type ExportConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FILMLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scrape.base_url", "https://www.imdb.com")
	v.SetDefault("scrape.movies", 50)
	v.SetDefault("scrape.genres", []string{"drama", "adventure", "thriller", "crime"})
	v.SetDefault("scrape.delay_min_secs", 1.5)
	v.SetDefault("scrape.delay_max_secs", 3.0)
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("scrape.max_attempts", 5)
	v.SetDefault("scrape.cookie_file", "data/cookies.json")
	v.SetDefault("proxy.enabled", true)
	v.SetDefault("proxy.countries", []string{"mx", "ar", "bo"})
	v.SetDefault("proxy.ip_lookup", "https://api.ipify.org?format=json")
	v.SetDefault("proxy.geo_lookup", "http://ip-api.com/json")
	v.SetDefault("export.dir", "data")
	v.SetDefault("export.formats", []string{"csv", "json"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
