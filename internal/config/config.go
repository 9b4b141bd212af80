package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Amazon    AmazonConfig    `yaml:"amazon" mapstructure:"amazon"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Autopilot AutopilotConfig `yaml:"autopilot" mapstructure:"autopilot"`
	Advisor   AdvisorConfig   `yaml:"advisor" mapstructure:"advisor"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`     // sqlite file
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AmazonConfig holds the Ads API credentials and endpoints.
type AmazonConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	RefreshToken string `yaml:"refresh_token" mapstructure:"refresh_token"`
	ProfileID    string `yaml:"profile_id" mapstructure:"profile_id"`
	TokenURL     string `yaml:"token_url" mapstructure:"token_url"`
	APIBaseURL   string `yaml:"api_base_url" mapstructure:"api_base_url"`
}

// Complete reports whether every credential field is present.
func (a AmazonConfig) Complete() bool {
	return a.ClientID != "" && a.ClientSecret != "" && a.RefreshToken != "" && a.ProfileID != ""
}

// SyncConfig configures the sync scheduler.
type SyncConfig struct {
	DefaultDays      int `yaml:"default_days" mapstructure:"default_days"`
	MaxDays          int `yaml:"max_days" mapstructure:"max_days"`
	RefreshDays      int `yaml:"refresh_days" mapstructure:"refresh_days"`
	IntervalSecs     int `yaml:"interval_secs" mapstructure:"interval_secs"`
	PollMaxAttempts  int `yaml:"poll_max_attempts" mapstructure:"poll_max_attempts"`
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	ReportWorkers    int `yaml:"report_workers" mapstructure:"report_workers"`
}

// AutopilotConfig holds fallback thresholds for the rule engine. Persisted
// system-state values take precedence at run time.
type AutopilotConfig struct {
	TargetACOS float64 `yaml:"target_acos" mapstructure:"target_acos"`
	MaxBid     float64 `yaml:"max_bid" mapstructure:"max_bid"`
	StopLoss   float64 `yaml:"stop_loss" mapstructure:"stop_loss"`
}

// AdvisorConfig configures the optional commentary call.
type AdvisorConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ServerConfig configures the read-only dashboard API.
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
	v.SetEnvPrefix("ADPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "adpilot.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("amazon.token_url", "https://api.amazon.com/auth/o2/token")
	v.SetDefault("amazon.api_base_url", "https://advertising-api.amazon.com")
	v.SetDefault("sync.default_days", 7)
	v.SetDefault("sync.max_days", 30)
	v.SetDefault("sync.refresh_days", 2)
	v.SetDefault("sync.interval_secs", 3*60*60)
	v.SetDefault("sync.poll_max_attempts", 180)
	v.SetDefault("sync.poll_interval_secs", 2)
	v.SetDefault("sync.report_workers", 3)
	v.SetDefault("autopilot.target_acos", 25.0)
	v.SetDefault("autopilot.max_bid", 2.5)
	v.SetDefault("autopilot.stop_loss", 15.0)
	v.SetDefault("advisor.model", "claude-haiku-4-5-20251001")

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

	// Bare AMAZON_* variables override, matching how operators already run
	// the scheduled jobs.
	for env, dst := range map[string]*string{
		"AMAZON_CLIENT_ID":     &cfg.Amazon.ClientID,
		"AMAZON_CLIENT_SECRET": &cfg.Amazon.ClientSecret,
		"AMAZON_REFRESH_TOKEN": &cfg.Amazon.RefreshToken,
		"AMAZON_PROFILE_ID":    &cfg.Amazon.ProfileID,
		"ANTHROPIC_API_KEY":    &cfg.Advisor.Key,
	} {
		if val := os.Getenv(env); val != "" {
			*dst = val
		}
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
