package cfg

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "HARVESTER"

type ViperLoader struct {
	v                     *viper.Viper
	configPath            string
	envFile               string
	usedFile              bool
	mu                    sync.RWMutex
	current               *Config
	configChangeCallbacks []func(*Config)
}

// NewViperLoader reads cfg/yaml/mode.yaml (or mode.yaml under configPath), the .env file and
// HARVESTER_* environment variables, in increasing priority.
func NewViperLoader(configPath string) (*ViperLoader, error) {
	if configPath == "" {
		configPath = "cfg/yaml"
	}
	return &ViperLoader{
		v:                     viper.New(),
		configPath:            configPath,
		envFile:               ".env",
		configChangeCallbacks: make([]func(*Config), 0),
	}, nil
}

func (yl *ViperLoader) Load() (*Config, error) {
	if err := godotenv.Load(yl.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("[CONFIG] failed to load %s: %w", yl.envFile, err)
	}

	yl.v.AddConfigPath(yl.configPath)
	yl.v.SetConfigName("mode")
	yl.v.SetConfigType("yaml")
	yl.v.SetEnvPrefix(envPrefix)
	yl.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	yl.v.AutomaticEnv()
	setDefaults(yl.v, Default())
	if err := yl.v.BindEnv("githubapi.access_token", envPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return nil, fmt.Errorf("[CONFIG] failed to bind credential: %w", err)
	}

	if err := yl.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("[CONFIG] failed to read config file: %w", err)
		}
	} else {
		yl.usedFile = true
	}

	config, err := yl.unmarshal()
	if err != nil {
		return nil, err
	}

	yl.mu.Lock()
	yl.current = config
	yl.mu.Unlock()
	return config, nil
}

// Watch re-reads the config file whenever it changes and hands the new value to every
// registered callback. It is a no-op when no file was found.
func (yl *ViperLoader) Watch(onError func(error)) {
	if !yl.usedFile {
		return
	}
	yl.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if err := yl.reloadConfig(); err != nil && onError != nil {
			onError(err)
		}
	})
	yl.v.WatchConfig()
}

func (yl *ViperLoader) RegisterConfigChangeCallback(callback func(*Config)) {
	yl.mu.Lock()
	yl.configChangeCallbacks = append(yl.configChangeCallbacks, callback)
	yl.mu.Unlock()
}

// Current returns the most recently loaded configuration.
func (yl *ViperLoader) Current() *Config {
	yl.mu.RLock()
	defer yl.mu.RUnlock()
	return yl.current
}

func (yl *ViperLoader) unmarshal() (*Config, error) {
	config := &Config{}
	if err := yl.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("[CONFIG] failed to unmarshal config: %w", err)
	}
	return config, nil
}

func (yl *ViperLoader) reloadConfig() error {
	config, err := yl.unmarshal()
	if err != nil {
		return fmt.Errorf("[CONFIG] failed to unmarshal config during reload: %w", err)
	}

	yl.mu.Lock()
	yl.current = config
	callbacks := make([]func(*Config), len(yl.configChangeCallbacks))
	copy(callbacks, yl.configChangeCallbacks)
	yl.mu.Unlock()

	for _, callback := range callbacks {
		callback(config)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.version", d.App.Version)
	v.SetDefault("app.log_level", d.App.LogLevel)
	v.SetDefault("app.log_pretty", d.App.LogPretty)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.username", d.Database.Username)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.database", d.Database.Database)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	v.SetDefault("database.max_idle_connection", d.Database.MaxIdleConnection)
	v.SetDefault("database.max_open_connection", d.Database.MaxOpenConnection)
	v.SetDefault("database.max_life_time_connection", d.Database.MaxLifeTimeConnection)

	v.SetDefault("githubapi.api_url", d.GithubApi.ApiUrl)
	v.SetDefault("githubapi.timeout", d.GithubApi.Timeout)
	v.SetDefault("githubapi.user_agent", d.GithubApi.UserAgent)

	v.SetDefault("crawl.target", d.Crawl.Target)
	v.SetDefault("crawl.start_date", d.Crawl.StartDate)
	v.SetDefault("crawl.end_date", d.Crawl.EndDate)
	v.SetDefault("crawl.window_days", d.Crawl.WindowDays)
	v.SetDefault("crawl.page_size", d.Crawl.PageSize)
	v.SetDefault("crawl.search_filter", d.Crawl.SearchFilter)
	v.SetDefault("crawl.max_results", d.Crawl.MaxResults)
	v.SetDefault("crawl.start_offset", d.Crawl.StartOffset)
	v.SetDefault("crawl.split_on_overflow", d.Crawl.SplitOnOverflow)
	v.SetDefault("crawl.min_window_days", d.Crawl.MinWindowDays)

	v.SetDefault("rate_limit.low_water", d.RateLimit.LowWater)
	v.SetDefault("rate_limit.safety_margin", d.RateLimit.SafetyMargin)
	v.SetDefault("rate_limit.reset_fallback", d.RateLimit.ResetFallback)
	v.SetDefault("rate_limit.min_interval", d.RateLimit.MinInterval)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.base_backoff", d.Retry.BaseBackoff)
	v.SetDefault("retry.max_backoff", d.Retry.MaxBackoff)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.jitter", d.Retry.Jitter)
	v.SetDefault("retry.max_rate_limit_waits", d.Retry.MaxRateLimitWaits)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("server.port", d.Server.Port)
}
