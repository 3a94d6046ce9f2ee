package cfg

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

type (
	App struct {
		Name      string `mapstructure:"name"`
		Version   string `mapstructure:"version"`
		LogLevel  string `mapstructure:"log_level"`
		LogPretty bool   `mapstructure:"log_pretty"`
	}

	Database struct {
		Driver                string `mapstructure:"driver"`
		Host                  string `mapstructure:"host"`
		Port                  string `mapstructure:"port"`
		Username              string `mapstructure:"username"`
		Password              string `mapstructure:"password"`
		Database              string `mapstructure:"database"`
		SSLMode               string `mapstructure:"ssl_mode"`
		MaxIdleConnection     int    `mapstructure:"max_idle_connection"`
		MaxOpenConnection     int    `mapstructure:"max_open_connection"`
		MaxLifeTimeConnection int    `mapstructure:"max_life_time_connection"`
	}

	GithubApi struct {
		AccessToken string        `mapstructure:"access_token"`
		ApiUrl      string        `mapstructure:"api_url"`
		Timeout     time.Duration `mapstructure:"timeout"`
		UserAgent   string        `mapstructure:"user_agent"`
	}

	Crawl struct {
		Target          int    `mapstructure:"target"`
		StartDate       string `mapstructure:"start_date"`
		EndDate         string `mapstructure:"end_date"`
		WindowDays      int    `mapstructure:"window_days"`
		PageSize        int    `mapstructure:"page_size"`
		SearchFilter    string `mapstructure:"search_filter"`
		MaxResults      int    `mapstructure:"max_results"`
		StartOffset     int    `mapstructure:"start_offset"`
		SplitOnOverflow bool   `mapstructure:"split_on_overflow"`
		MinWindowDays   int    `mapstructure:"min_window_days"`
	}

	RateLimit struct {
		LowWater      int           `mapstructure:"low_water"`
		SafetyMargin  time.Duration `mapstructure:"safety_margin"`
		ResetFallback time.Duration `mapstructure:"reset_fallback"`
		MinInterval   time.Duration `mapstructure:"min_interval"`
	}

	Retry struct {
		MaxAttempts       int           `mapstructure:"max_attempts"`
		BaseBackoff       time.Duration `mapstructure:"base_backoff"`
		MaxBackoff        time.Duration `mapstructure:"max_backoff"`
		Multiplier        float64       `mapstructure:"multiplier"`
		Jitter            float64       `mapstructure:"jitter"`
		MaxRateLimitWaits int           `mapstructure:"max_rate_limit_waits"`
	}

	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	}

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	}

	Server struct {
		Port int `mapstructure:"port"`
	}
)

type Config struct {
	App       App       `mapstructure:"app"`
	Database  Database  `mapstructure:"database"`
	GithubApi GithubApi `mapstructure:"githubapi"`
	Crawl     Crawl     `mapstructure:"crawl"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
	Retry     Retry     `mapstructure:"retry"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Redis     Redis     `mapstructure:"redis"`
	Server    Server    `mapstructure:"server"`
}

// Span returns the overall creation-time range to harvest. An empty end date means now.
func (c Crawl) Span(now time.Time) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dateLayout, c.StartDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse start_date %q: %w", c.StartDate, err)
	}
	if c.EndDate == "" {
		return start, now.UTC(), nil
	}
	end, err := time.ParseInLocation(dateLayout, c.EndDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse end_date %q: %w", c.EndDate, err)
	}
	return start, end, nil
}

// Default returns the configuration used when neither the file nor the environment sets a key.
func Default() *Config {
	return &Config{
		App: App{
			Name:     "repo-harvester",
			Version:  "0.1.0",
			LogLevel: "info",
		},
		Database: Database{
			Driver:                "postgres",
			Host:                  "localhost",
			Port:                  "5432",
			Username:              "postgres",
			Password:              "postgres",
			Database:              "github_data",
			SSLMode:               "disable",
			MaxIdleConnection:     2,
			MaxOpenConnection:     4,
			MaxLifeTimeConnection: 3600,
		},
		GithubApi: GithubApi{
			ApiUrl:    "https://api.github.com/graphql",
			Timeout:   30 * time.Second,
			UserAgent: "repo-harvester",
		},
		Crawl: Crawl{
			Target:        100000,
			StartDate:     "2008-01-01",
			WindowDays:    30,
			PageSize:      100,
			SearchFilter:  "stars:>10",
			MaxResults:    1000,
			MinWindowDays: 1,
		},
		RateLimit: RateLimit{
			LowWater:      10,
			SafetyMargin:  5 * time.Second,
			ResetFallback: time.Minute,
			MinInterval:   time.Second,
		},
		Retry: Retry{
			MaxAttempts:       3,
			BaseBackoff:       time.Second,
			MaxBackoff:        30 * time.Second,
			Multiplier:        2,
			Jitter:            0.2,
			MaxRateLimitWaits: 5,
		},
		Kafka: Kafka{
			Topic: "repositories",
		},
	}
}
