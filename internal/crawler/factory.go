package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thep200/repo-harvester/cfg"
	githubapi "github.com/thep200/repo-harvester/internal/github_api"
	"github.com/thep200/repo-harvester/internal/limiter"
	"github.com/thep200/repo-harvester/internal/model"
	"github.com/thep200/repo-harvester/internal/partition"
	"github.com/thep200/repo-harvester/internal/retry"
	"github.com/thep200/repo-harvester/pkg/db"
	"github.com/thep200/repo-harvester/pkg/kafka"
	"github.com/thep200/repo-harvester/pkg/log"
)

// Harvester bundles an Orchestrator with the resources built for it.
type Harvester struct {
	*Orchestrator
	Limiter    *limiter.RateLimiter
	Repository *model.Repository
	Producer   *kafka.Producer
	redis      *redis.Client
}

// FactoryHarvester khởi tạo toàn bộ thành phần của một lần chạy từ cấu hình.
// Kafka và Redis chỉ được dùng khi có cấu hình. client có thể là nil.
func FactoryHarvester(ctx context.Context, logger log.Logger, config *cfg.Config, database *db.Database, client *http.Client) (*Harvester, error) {
	// Planner
	start, end, err := config.Crawl.Span(time.Now())
	if err != nil {
		return nil, err
	}
	planner, err := partition.NewPlanner(start, end, config.Crawl.WindowDays)
	if err != nil {
		return nil, err
	}

	store, err := model.NewRepository(config, logger, database)
	if err != nil {
		return nil, err
	}

	h := &Harvester{Repository: store}

	// Quota: dùng chung trạng thái qua Redis nếu có
	var quotaStore limiter.QuotaStore
	if config.Redis.Addr != "" {
		h.redis = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		quotaStore = limiter.NewRedisQuotaStore(h.redis)
	}

	h.Limiter = limiter.NewRateLimiter(logger, limiter.Options{
		LowWater:      config.RateLimit.LowWater,
		SafetyMargin:  config.RateLimit.SafetyMargin,
		ResetFallback: config.RateLimit.ResetFallback,
		MinInterval:   config.RateLimit.MinInterval,
	}, quotaStore)
	h.Limiter.Restore(ctx)

	// Retry + fetcher
	policy := retry.NewPolicy(logger, retry.Options{
		MaxAttempts:       config.Retry.MaxAttempts,
		BaseBackoff:       config.Retry.BaseBackoff,
		MaxBackoff:        config.Retry.MaxBackoff,
		Multiplier:        config.Retry.Multiplier,
		Jitter:            config.Retry.Jitter,
		MaxRateLimitWaits: config.Retry.MaxRateLimitWaits,
	}, h.Limiter)

	caller := githubapi.NewCaller(logger, config, client)
	fetcher := githubapi.NewFetcher(logger, caller, h.Limiter, policy, githubapi.FetchOptionsFromConfig(config.Crawl))

	// Kafka producer
	var publisher Publisher
	if len(config.Kafka.Brokers) > 0 {
		h.Producer, err = kafka.NewProducer(config, logger)
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		publisher = h.Producer
	}

	//
	h.Orchestrator = NewOrchestrator(logger, planner, fetcher, store, publisher, Options{
		Target:          config.Crawl.Target,
		StartOffset:     config.Crawl.StartOffset,
		SplitOnOverflow: config.Crawl.SplitOnOverflow,
		MinWindow:       time.Duration(config.Crawl.MinWindowDays) * 24 * time.Hour,
	})
	return h, nil
}

// Close releases the Kafka writer and the Redis client. The database belongs to the caller.
func (h *Harvester) Close() error {
	var errs []error
	if h.Producer != nil {
		errs = append(errs, h.Producer.Close())
	}
	if h.redis != nil {
		errs = append(errs, h.redis.Close())
	}
	return errors.Join(errs...)
}
