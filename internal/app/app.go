// Package app builds the server's dependency graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"trendscribe/internal/config"
	"trendscribe/internal/metrics"
	"trendscribe/internal/ratelimit"
	"trendscribe/internal/usertoken"
	"trendscribe/internal/util"
	"trendscribe/pkg/ai"
	"trendscribe/pkg/chat"
	"trendscribe/pkg/events"
	"trendscribe/pkg/pipeline"
	"trendscribe/pkg/storage"
	"trendscribe/pkg/store"
	"trendscribe/pkg/trends"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Config    config.FileConfig
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Redis     *redis.Client
	Store     store.Store
	Selector  *trends.Selector
	Related   *trends.RelatedFinder
	Pipeline  *pipeline.Pipeline
	Chat      *chat.Service
	Publisher events.Publisher
	Verifier  *usertoken.Verifier

	GenerateLimiter ratelimit.Limiter
	TrendsLimiter   ratelimit.Limiter
	TrustedProxies  *util.TrustedProxies

	closers []func() error
}

// New connects every configured backend. On error the backends opened so far
// are closed.
func New(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	ready := false
	defer func() {
		if !ready {
			_ = a.Close()
		}
	}()
	var err error

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(reg)

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		a.Redis, err = OpenRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.Redis.Close)
	}

	a.Store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Store.Close)

	generator := NewGenerator(cfg, logger)
	upstream := NewTrendSource(cfg, logger)
	a.Selector = NewSelector(cfg, upstream, a.Redis, generator)
	a.Related = NewRelatedFinder(upstream)

	a.Publisher, err = openPublisher(cfg, a.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Publisher.Close)

	opts := []pipeline.Option{
		pipeline.WithModel(cfg.GenerationModel),
		pipeline.WithGenerationTimeout(config.Duration(cfg.GenerationTimeout)),
		pipeline.WithPublisher(a.Publisher),
		pipeline.WithMetrics(a.Metrics),
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		opts = append(opts, pipeline.WithObjectStore(objects, config.Duration(cfg.ExportURLTTL)))
	} else {
		logger.Info("object storage not configured, exports disabled")
	}
	a.Pipeline = pipeline.New(a.Store, a.Selector, generator, opts...)
	a.Chat = chat.New(a.Store, generator,
		chat.WithModels(cfg.GenerationModel, cfg.ChatModels...),
		chat.WithTimeout(config.Duration(cfg.GenerationTimeout)),
		chat.WithHistory(cfg.ChatHistory),
		chat.WithMetrics(a.Metrics),
	)

	a.Verifier, err = NewVerifier(cfg)
	if err != nil {
		return nil, err
	}

	if a.GenerateLimiter, err = newLimiter(a.Redis, "trendscribe:ratelimit:generate", cfg.GenerateRateLimitPerMinute); err != nil {
		return nil, fmt.Errorf("init generate limiter: %w", err)
	}
	if a.TrendsLimiter, err = newLimiter(a.Redis, "trendscribe:ratelimit:trends", cfg.TrendsRateLimitPerMinute); err != nil {
		return nil, fmt.Errorf("init trends limiter: %w", err)
	}
	a.TrustedProxies, err = util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	ready = true
	return a, nil
}

// Ping checks the primary store.
func (a *App) Ping(ctx context.Context) error {
	return a.Store.Ping(ctx)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenRedis connects and pings the configured Redis.
func OpenRedis(ctx context.Context, cfg config.FileConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func openStore(ctx context.Context, cfg config.FileConfig) (store.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		st, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return st, nil
	case "mongo":
		st, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("init mongo store: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func openPublisher(cfg config.FileConfig, rdb *redis.Client) (events.Publisher, error) {
	switch cfg.EventsBackend {
	case "redis":
		pub, err := events.NewRedisStreamPublisher(rdb, events.RedisStreamConfig{Stream: cfg.EventsStream, MaxLen: cfg.EventsStreamMax})
		if err != nil {
			return nil, fmt.Errorf("init redis events: %w", err)
		}
		return pub, nil
	case "amqp":
		pub, err := events.NewAMQPPublisher(events.AMQPConfig{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange})
		if err != nil {
			return nil, fmt.Errorf("init amqp events: %w", err)
		}
		return pub, nil
	default:
		return events.NopPublisher{}, nil
	}
}

func newLimiter(rdb *redis.Client, prefix string, perMinute int) (ratelimit.Limiter, error) {
	if perMinute <= 0 {
		return nil, nil
	}
	if rdb == nil {
		return ratelimit.NewMemoryFixedWindowLimiter(perMinute, time.Minute)
	}
	return ratelimit.NewRedisFixedWindowLimiter(rdb, prefix, perMinute, time.Minute)
}

// NewGenerator builds the configured text generator. A provider that cannot
// be built yields nil, which makes every run use template text.
func NewGenerator(cfg config.FileConfig, logger *slog.Logger) ai.TextGenerator {
	gen, err := ai.NewGenerator(ai.ProviderConfig{
		Provider: cfg.GenerationProvider,
		BaseURL:  cfg.GenerationBaseURL,
		APIKey:   cfg.GenerationAPIKey,
		Timeout:  config.Duration(cfg.GenerationTimeout),
	})
	if err != nil {
		logger.Warn("generation provider unavailable, using template text", "provider", cfg.GenerationProvider, "err", err)
		return nil
	}
	return gen
}

// NewTrendSource builds the throttled SerpAPI client shared by keyword
// selection and related-topic lookups. It returns nil without an API key.
func NewTrendSource(cfg config.FileConfig, logger *slog.Logger) *trends.ThrottledSource {
	serp, err := trends.NewSerpAPISource(trends.SerpAPIConfig{
		APIKey:  cfg.SerpAPIKey,
		BaseURL: cfg.SerpAPIBaseURL,
		Timeout: config.Duration(cfg.TrendFetchTimeout),
	})
	if err != nil {
		logger.Warn("trend provider unavailable, using fallback keywords", "err", err)
		return nil
	}
	return trends.NewThrottledSource(serp, cfg.TrendRatePerSec, cfg.TrendBurst)
}

// NewSelector builds the keyword selector over upstream, cached per config.
// A nil upstream makes every selection use the fallback catalog.
func NewSelector(cfg config.FileConfig, upstream *trends.ThrottledSource, rdb *redis.Client, gen ai.TextGenerator) *trends.Selector {
	opts := []trends.SelectorOption{
		trends.WithTopN(cfg.TrendTopN),
		trends.WithDefaultWindow(cfg.TrendWindowHours),
		trends.WithFetchTimeout(config.Duration(cfg.TrendFetchTimeout)),
	}
	if cfg.RerankEnabled && gen != nil {
		opts = append(opts, trends.WithReranker(trends.NewReranker(gen, cfg.RerankModel, 0)))
	}
	if upstream == nil {
		return trends.NewSelector(nil, opts...)
	}

	var source trends.Source = upstream
	ttl := config.Duration(cfg.TrendCacheTTL)
	switch cfg.TrendCache {
	case "redis":
		if rdb != nil {
			source = trends.NewCachedSource(source, trends.NewRedisCache(rdb, ""), ttl)
		}
	case "memory":
		source = trends.NewCachedSource(source, trends.NewMemoryCache(ttl), ttl)
	}
	return trends.NewSelector(source, opts...)
}

// NewRelatedFinder builds the related-topics lookup over upstream.
func NewRelatedFinder(upstream *trends.ThrottledSource) *trends.RelatedFinder {
	if upstream == nil {
		return trends.NewRelatedFinder(nil)
	}
	return trends.NewRelatedFinder(upstream)
}

// NewVerifier builds the user token verifier.
func NewVerifier(cfg config.FileConfig) (*usertoken.Verifier, error) {
	leeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	if err != nil {
		return nil, err
	}
	verifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("init token verifier: %w", err)
	}
	return verifier, nil
}
