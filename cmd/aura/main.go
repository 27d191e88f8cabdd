package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mathew005/aura-agent/internal/adapter/csvfeed"
	httpadapter "github.com/Mathew005/aura-agent/internal/adapter/http"
	kafkaadapter "github.com/Mathew005/aura-agent/internal/adapter/kafka"
	"github.com/Mathew005/aura-agent/internal/adapter/llm"
	"github.com/Mathew005/aura-agent/internal/adapter/mapbox"
	"github.com/Mathew005/aura-agent/internal/adapter/news"
	"github.com/Mathew005/aura-agent/internal/adapter/reddit"
	redisadapter "github.com/Mathew005/aura-agent/internal/adapter/redis"
	"github.com/Mathew005/aura-agent/internal/adapter/search"
	"github.com/Mathew005/aura-agent/internal/adapter/weather"
	"github.com/Mathew005/aura-agent/internal/config"
	"github.com/Mathew005/aura-agent/internal/correlate"
	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/extract"
	"github.com/Mathew005/aura-agent/internal/observability"
	"github.com/Mathew005/aura-agent/internal/pipeline"
	"github.com/Mathew005/aura-agent/internal/resilience"
	"github.com/Mathew005/aura-agent/internal/scout"
	"github.com/Mathew005/aura-agent/internal/verify"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	caller := resilience.New(
		resilience.WithClock(clock),
		resilience.WithLogger(logger),
		resilience.WithMetrics(metrics),
		resilience.WithMaxRateLimitWaits(cfg.MaxRateLimitWaits),
	)

	var model *llm.Client
	if cfg.LLMEnabled() {
		model = llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout, logger)
	}

	geocoder := newGeocoder(cfg, metrics, logger)
	engine := newEngine(cfg, model, caller, clock, metrics, logger)

	deps := pipeline.Deps{Store: engine}
	if model != nil {
		var weatherLookup verify.WeatherLookup
		if cfg.OpenWeatherAPIKey != "" {
			weatherLookup = weather.NewClient(cfg.OpenWeatherAPIKey, cfg.ExternalTimeout)
		}

		deps.Extractor = extract.NewModelExtractor(model, geocoder, caller, cfg.GeocodeFallback, logger)
		deps.Strategist = scout.NewModelStrategist(model, caller, logger)
		deps.Gatherer = newGatherer(cfg, caller, logger)
		deps.Verifier = verify.New(verify.NewModelScorer(model), weatherLookup, caller, cfg.VerificationThreshold, logger, metrics)
		logger.Info("language model enabled", "model", cfg.LLMModel, "search", cfg.SearchEnabled())
	} else {
		deps.Extractor = extract.Stub{}
		deps.Strategist = scout.TemplateStrategist{}
		deps.Gatherer = scout.StubGatherer{}
		deps.Verifier = verify.New(nil, nil, caller, cfg.VerificationThreshold, logger, metrics)
		logger.Info("language model disabled, using deterministic stubs")
	}

	passive, closePassive, err := newPassiveFeed(ctx, cfg, clock, logger)
	if err != nil {
		logger.Error("failed to open feed", "backend", cfg.FeedBackend, "error", err)
		os.Exit(1)
	}
	manual := pipeline.NewManualFeed(cfg.ManualQueue)
	deps.Feed = pipeline.Chain(manual, passive)

	// Submitted reports join the shared queue when several agents read it.
	var ingest httpadapter.Ingester = manual
	if queue, ok := passive.(*redisadapter.Feed); ok {
		ingest = queue
	}

	var writer *kafkaadapter.Writer
	if cfg.KafkaSinkEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		deps.Sink = writer
		logger.Info("publishing incidents to kafka", "topic", cfg.KafkaSinkTopic)
	}

	orch := pipeline.New(deps, pipeline.Config{
		IdleThreshold: cfg.IdleThreshold,
		CycleTimeout:  cfg.CycleTimeout,
		Clock:         clock,
	}, logger, metrics)

	handler := httpadapter.NewHandler(orch, engine, ingest, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, handler, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ingestion workers.
	go func() {
		err := orch.Run(ctx, pipeline.RunConfig{
			Workers:     cfg.Workers,
			Interval:    cfg.CycleInterval,
			MaxInterval: 8 * cfg.CycleInterval,
		})
		if err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := closePassive(); err != nil {
		logger.Error("feed close error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// newGeocoder is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
func newGeocoder(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.Geocoder {
	if !cfg.MapboxEnabled {
		metrics.GeocodeEnabled.Set(0)
		logger.Info("mapbox geocoding disabled")
		return extract.StubGeocoder{}
	}
	metrics.GeocodeEnabled.Set(1)
	opts := []mapbox.Option{mapbox.WithMinRelevance(cfg.MapboxMinScore)}
	if cfg.GeocodeFallback != nil {
		opts = append(opts, mapbox.WithProximity(*cfg.GeocodeFallback))
	}
	client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger, opts...)
	logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	return mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
}

func newEngine(cfg *config.Config, model *llm.Client, caller *resilience.Caller, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *correlate.Engine {
	opts := []correlate.Option{
		correlate.WithClock(clock),
		correlate.WithLogger(logger),
		correlate.WithMetrics(metrics),
	}
	var (
		metric    domain.Metric = domain.Haversine{}
		threshold               = cfg.MatchRadiusMeters
	)
	if cfg.MatchMetric == config.MetricPlanar {
		metric, threshold = domain.Planar{}, cfg.MatchPlanarDegrees
	}
	opts = append(opts, correlate.WithMetric(metric, threshold))
	logger.Info("correlation radius", "metric", cfg.MatchMetric, "threshold", threshold, "unit", metric.Unit())
	if model != nil {
		opts = append(opts, correlate.WithMatcher(correlate.NewModelMatcher(model, caller, logger)))
	}
	return correlate.New(opts...)
}

func newGatherer(cfg *config.Config, caller *resilience.Caller, logger *slog.Logger) *scout.WebGatherer {
	var searcher scout.Searcher
	if cfg.SearchEnabled() {
		searcher = search.NewClient(cfg.GoogleSearchAPIKey, cfg.GoogleSearchCX, cfg.ExternalTimeout)
	}
	return scout.NewWebGatherer(searcher, reddit.NewClient(cfg.ExternalTimeout), news.NewClient(cfg.ExternalTimeout), caller, cfg.SearchRate, logger)
}

// newPassiveFeed opens the FEED_BACKEND source. The returned func releases it.
func newPassiveFeed(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (pipeline.Feed, func() error, error) {
	noop := func() error { return nil }

	switch cfg.FeedBackend {
	case config.FeedNews:
		queries := cfg.NewsQueries
		if len(queries) == 0 {
			queries = news.DefaultQueries
		}
		feed := news.NewLiveFeed(news.NewClient(cfg.ExternalTimeout), queries, cfg.NewsRefetch, clock, logger)
		logger.Info("live news feed", "queries", len(queries), "refetch", cfg.NewsRefetch)
		return feed, noop, nil
	case config.FeedKafka:
		reader := kafkaadapter.NewReader(cfg, logger)
		logger.Info("kafka feed", "topic", cfg.KafkaSourceTopic, "group", cfg.KafkaGroupID)
		return reader, reader.Close, nil
	case config.FeedRedis:
		client, err := redisadapter.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		feed := redisadapter.NewFeed(client, cfg.RedisFeedKey, logger)
		backlog, err := feed.Len(ctx)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("redis feed", "addr", cfg.RedisAddr, "key", cfg.RedisFeedKey, "backlog", backlog)
		return feed, client.Close, nil
	default:
		feed, err := csvfeed.Open(cfg.FeedCSVPath, clock)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("simulated csv feed", "path", cfg.FeedCSVPath, "rows", feed.Len())
		return feed, noop, nil
	}
}
