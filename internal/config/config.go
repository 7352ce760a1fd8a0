package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	Source     SourceConfig     `mapstructure:"source"`
	Tokenizer  TokenizerConfig  `mapstructure:"tokenizer"`
	Scorer     ScorerConfig     `mapstructure:"scorer"`
	Dictionary DictionaryConfig `mapstructure:"dictionary"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Spike      SpikeConfig      `mapstructure:"spike"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type CronConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// DailyIngest is a 6-field cron spec (seconds included) for the routine
	// prior-day ingestion cycle.
	DailyIngest string `mapstructure:"daily_ingest"`
}

// SourceConfig configures the external message source client.
type SourceConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PageLimit int           `mapstructure:"page_limit"`
	// RatePerSec and RateBurst bound outgoing fetches to respect the
	// source's rate limits.
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	RateBurst  int     `mapstructure:"rate_burst"`
}

type TokenizerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ScorerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxChars caps the text prefix sent to the scorer, in runes.
	MaxChars int `mapstructure:"max_chars"`
}

type DictionaryConfig struct {
	StocksPath     string `mapstructure:"stocks_path"`
	IndustriesPath string `mapstructure:"industries_path"`
}

type IngestConfig struct {
	Channels    []string `mapstructure:"channels"`
	Concurrency int      `mapstructure:"concurrency"`
	// Timezone is the fixed reference timezone used for calendar-day
	// bucketing of message timestamps.
	Timezone        string `mapstructure:"timezone"`
	BackfillDays    int    `mapstructure:"backfill_days"`
	BackfillOnStart bool   `mapstructure:"backfill_on_start"`
}

type SpikeConfig struct {
	RatioThreshold float64 `mapstructure:"ratio_threshold"`
	Limit          int     `mapstructure:"limit"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.daily_ingest", "0 0 2 * * *")
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("source.page_limit", 200)
	v.SetDefault("source.rate_per_sec", 5)
	v.SetDefault("source.rate_burst", 10)
	v.SetDefault("tokenizer.enabled", true)
	v.SetDefault("tokenizer.timeout", "10s")
	v.SetDefault("scorer.timeout", "15s")
	v.SetDefault("scorer.max_chars", 512)
	v.SetDefault("dictionary.stocks_path", "data/stocks.csv")
	v.SetDefault("dictionary.industries_path", "data/industries.txt")
	v.SetDefault("ingest.concurrency", 3)
	v.SetDefault("ingest.timezone", "UTC")
	v.SetDefault("ingest.backfill_days", 3)
	v.SetDefault("ingest.backfill_on_start", false)
	v.SetDefault("spike.ratio_threshold", 2.0)
	v.SetDefault("spike.limit", 50)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
