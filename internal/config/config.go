// Package config loads the pipeline's configuration from a YAML file with
// environment-variable overrides for secrets. Validate enforces the checks
// that must fail fast at startup rather than surface as per-pick drops.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FeedConfig is the upstream surebet feed's connection and bookmaker scope.
type FeedConfig struct {
	APIBase         string   `mapstructure:"api_base"`
	APIToken        string   `mapstructure:"api_token"`
	APIBookmakers   []string `mapstructure:"api_bookmakers"`
	SharpBookmakers []string `mapstructure:"sharp_bookmakers"`
	Sports          []string `mapstructure:"sports"`
}

// TargetsConfig names which soft bookmakers receive deliveries and where.
type TargetsConfig struct {
	TargetBookies     []string          `mapstructure:"target_bookies"`
	BookmakerChannels map[string]string `mapstructure:"bookmaker_channels"`
}

// FilterConfig carries the validation chain's inclusive bounds.
type FilterConfig struct {
	MinOdds   float64 `mapstructure:"min_odds"`
	MaxOdds   float64 `mapstructure:"max_odds"`
	MinProfit float64 `mapstructure:"min_profit"`
	MaxProfit float64 `mapstructure:"max_profit"`
}

// PollingConfig tunes the adaptive poller.
type PollingConfig struct {
	BaseInterval time.Duration `mapstructure:"polling_base_interval"`
	MaxInterval  time.Duration `mapstructure:"polling_max_interval"`
}

// MessageCacheConfig tunes the message builder's static-part cache.
type MessageCacheConfig struct {
	TTL        time.Duration `mapstructure:"html_cache_ttl"`
	MaxEntries int           `mapstructure:"html_cache_max_entries"`
}

// DispatcherConfig tunes the priority dispatcher.
type DispatcherConfig struct {
	MaxQueue   int      `mapstructure:"dispatcher_max_queue"`
	BotTokens  []string `mapstructure:"bot_tokens"`
	ChatAPIURL string   `mapstructure:"chat_api_url"`
}

// DedupConfig carries the backing store's connection details.
type DedupConfig struct {
	Addr     string `mapstructure:"dedup_addr"`
	Password string `mapstructure:"dedup_password"`
	DB       int    `mapstructure:"dedup_db"`
}

// AdminConfig tunes the admin HTTP surface (C13).
type AdminConfig struct {
	Addr string `mapstructure:"admin_addr"`
}

// LoggingConfig controls the zap logger construction.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Env   string `mapstructure:"env"`
}

// Config is the top-level configuration, unmarshalled directly from the
// YAML file structure with FORTUNA_-prefixed env var overrides.
type Config struct {
	Feed            FeedConfig          `mapstructure:"feed"`
	Targets         TargetsConfig       `mapstructure:"targets"`
	Filter          FilterConfig        `mapstructure:"filter"`
	Polling         PollingConfig       `mapstructure:"polling"`
	ConcurrentPicks int                 `mapstructure:"concurrent_picks"`
	MessageCache    MessageCacheConfig  `mapstructure:"message_cache"`
	Dispatcher      DispatcherConfig    `mapstructure:"dispatcher"`
	Dedup           DedupConfig         `mapstructure:"dedup"`
	Admin           AdminConfig         `mapstructure:"admin"`
	Logging         LoggingConfig       `mapstructure:"logging"`
	StatsInterval   time.Duration       `mapstructure:"stats_interval"`
	ShutdownGrace   time.Duration       `mapstructure:"shutdown_grace"`
}

// Load reads config from a YAML file with FORTUNA_*-prefixed environment
// variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FORTUNA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	// Viper folds map keys to lower case; re-key each target bookie's channel
	// under the bookie id as configured so lookups by that id succeed.
	for _, bk := range cfg.Targets.TargetBookies {
		if ch, ok := cfg.Targets.BookmakerChannels[strings.ToLower(bk)]; ok {
			cfg.Targets.BookmakerChannels[bk] = ch
		}
	}
	if token := v.GetString("feed.api_token"); token != "" {
		cfg.Feed.APIToken = token
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("filter.min_odds", 1.10)
	v.SetDefault("filter.max_odds", 9.99)
	v.SetDefault("filter.min_profit", -1.0)
	v.SetDefault("filter.max_profit", 25.0)
	v.SetDefault("polling.polling_base_interval", 500*time.Millisecond)
	v.SetDefault("polling.polling_max_interval", 5*time.Second)
	v.SetDefault("concurrent_picks", 250)
	v.SetDefault("message_cache.html_cache_ttl", 60*time.Second)
	v.SetDefault("message_cache.html_cache_max_entries", 10000)
	v.SetDefault("dispatcher.dispatcher_max_queue", 1000)
	v.SetDefault("admin.admin_addr", ":8090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.env", "production")
	v.SetDefault("stats_interval", 10*time.Second)
	v.SetDefault("shutdown_grace", 5*time.Second)
}

// Validate enforces the startup invariants, chief among them: every target
// bookie must have a channel mapping. A missing mapping is a configuration
// error, not a runtime drop.
func (c *Config) Validate() error {
	if c.Feed.APIBase == "" {
		return fmt.Errorf("config: feed.api_base is required")
	}
	if c.Feed.APIToken == "" {
		return fmt.Errorf("config: feed.api_token is required")
	}
	if len(c.Feed.SharpBookmakers) == 0 {
		return fmt.Errorf("config: feed.sharp_bookmakers must name at least one bookmaker")
	}
	if len(c.Targets.TargetBookies) == 0 {
		return fmt.Errorf("config: targets.target_bookies must name at least one bookmaker")
	}
	for _, bk := range c.Targets.TargetBookies {
		if _, ok := c.Targets.BookmakerChannels[bk]; !ok {
			return fmt.Errorf("config: target bookie %q has no entry in targets.bookmaker_channels", bk)
		}
	}
	if len(c.Dispatcher.BotTokens) == 0 {
		return fmt.Errorf("config: dispatcher.bot_tokens must name at least one bot")
	}
	if c.Filter.MinOdds <= 1.0 || c.Filter.MaxOdds <= c.Filter.MinOdds {
		return fmt.Errorf("config: filter.min_odds/max_odds must form a valid range above 1.0")
	}
	if c.Polling.BaseInterval <= 0 || c.Polling.MaxInterval < c.Polling.BaseInterval {
		return fmt.Errorf("config: polling.polling_base_interval/polling_max_interval must form a valid range")
	}
	return nil
}

// AllBookmakers returns the superset of sharp and soft bookmaker ids used
// for the feed's `source` query parameter, in configuration order.
func (c *Config) AllBookmakers() []string {
	if len(c.Feed.APIBookmakers) > 0 {
		return c.Feed.APIBookmakers
	}
	seen := make(map[string]bool)
	var all []string
	for _, bk := range c.Feed.SharpBookmakers {
		if !seen[bk] {
			seen[bk] = true
			all = append(all, bk)
		}
	}
	for _, bk := range c.Targets.TargetBookies {
		if !seen[bk] {
			seen[bk] = true
			all = append(all, bk)
		}
	}
	return all
}
