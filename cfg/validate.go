package cfg

import (
	"errors"
	"fmt"
	"time"
)

// ConfigError reports a missing or invalid setting. No run starts while one is present.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Validate checks everything a run needs before any connection is opened.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if c.GithubApi.AccessToken == "" {
		add("githubapi.access_token", "missing credential (set GITHUB_TOKEN)")
	}
	if c.GithubApi.ApiUrl == "" {
		add("githubapi.api_url", "must not be empty")
	}

	if c.Crawl.Target <= 0 {
		add("crawl.target", "must be positive, got %d", c.Crawl.Target)
	}
	if c.Crawl.WindowDays <= 0 {
		add("crawl.window_days", "must be positive, got %d", c.Crawl.WindowDays)
	}
	if c.Crawl.PageSize < 1 || c.Crawl.PageSize > 100 {
		add("crawl.page_size", "must be within 1..100, got %d", c.Crawl.PageSize)
	}
	if c.Crawl.StartOffset < 0 {
		add("crawl.start_offset", "must not be negative, got %d", c.Crawl.StartOffset)
	}
	if c.Crawl.SplitOnOverflow && c.Crawl.MinWindowDays < 1 {
		add("crawl.min_window_days", "must be at least 1 when split_on_overflow is set, got %d", c.Crawl.MinWindowDays)
	}
	if _, _, err := c.Crawl.Span(time.Now()); err != nil {
		add("crawl.start_date", "%v", err)
	}

	if c.Retry.MaxAttempts <= 0 {
		add("retry.max_attempts", "must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.RateLimit.LowWater < 0 {
		add("rate_limit.low_water", "must not be negative, got %d", c.RateLimit.LowWater)
	}

	errs = append(errs, c.Database.Validate())
	return errors.Join(errs...)
}

// Validate checks the connection settings alone; migrate needs nothing else.
func (d Database) Validate() error {
	var errs []error
	switch d.Driver {
	case "postgres", "mysql":
	default:
		errs = append(errs, &ConfigError{Field: "database.driver", Reason: fmt.Sprintf("unsupported driver %q", d.Driver)})
	}
	if d.Host == "" {
		errs = append(errs, &ConfigError{Field: "database.host", Reason: "must not be empty"})
	}
	if d.Database == "" {
		errs = append(errs, &ConfigError{Field: "database.database", Reason: "must not be empty"})
	}
	return errors.Join(errs...)
}
