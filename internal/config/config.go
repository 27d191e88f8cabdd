package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Mathew005/aura-agent/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Feed backends for the passive ingestion source.
const (
	FeedCSV   = "csv"
	FeedNews  = "news"
	FeedKafka = "kafka"
	FeedRedis = "redis"
)

// Match metrics for the correlation engine.
const (
	MetricHaversine = "haversine"
	MetricPlanar    = "planar"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Passive feed.
	FeedBackend string
	FeedCSVPath string
	// NewsQueries overrides the live feed's search queries when non-empty.
	NewsQueries []string
	NewsRefetch time.Duration
	ManualQueue int

	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	KafkaSinkEnabled bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisFeedKey  string

	// Language model. Disabled when LLMAPIKey is empty; stubs are used instead.
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxMinScore  float64

	// ExternalTimeout bounds each request to the evidence and weather APIs.
	ExternalTimeout    time.Duration
	OpenWeatherAPIKey  string
	GoogleSearchAPIKey string
	GoogleSearchCX     string
	GeocodeFallback    *domain.Coordinate

	VerificationThreshold int

	MatchMetric        string
	MatchRadiusMeters  float64
	MatchPlanarDegrees float64

	IdleThreshold     time.Duration
	CycleInterval     time.Duration
	CycleTimeout      time.Duration
	Workers           int
	SearchRate        float64
	MaxRateLimitWaits int
}

// LLMEnabled reports whether a language model is configured.
func (c *Config) LLMEnabled() bool { return c.LLMAPIKey != "" }

// SearchEnabled reports whether live web search is configured.
func (c *Config) SearchEnabled() bool {
	return c.GoogleSearchAPIKey != "" && c.GoogleSearchCX != ""
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var errs []error
	dur := func(key, def string) time.Duration {
		d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s", key))
		}
		return d
	}
	num := func(key string, def int, minimum int) int {
		s := os.Getenv(key)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < minimum {
			errs = append(errs, fmt.Errorf("invalid %s", key))
		}
		return n
	}
	float := func(key string, def float64) float64 {
		s := os.Getenv(key)
		if s == "" {
			return def
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			errs = append(errs, fmt.Errorf("invalid %s", key))
		}
		return f
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FeedBackend: strings.ToLower(sharedcfg.EnvOrDefault("FEED_BACKEND", FeedCSV)),
		FeedCSVPath: sharedcfg.EnvOrDefault("FEED_CSV_PATH", "data/mock_stream.csv"),
		NewsQueries: splitList(os.Getenv("NEWS_QUERIES")),
		NewsRefetch: dur("NEWS_REFETCH_INTERVAL", "5m"),
		ManualQueue: num("MANUAL_QUEUE_SIZE", 100, 1),

		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-incident-reports"),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "consolidated-incidents"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "aura-agent"),
		KafkaSinkEnabled: os.Getenv("KAFKA_SINK_ENABLED") == "true",

		RedisAddr:     sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       num("REDIS_DB", 0, 0),
		RedisFeedKey:  sharedcfg.EnvOrDefault("REDIS_FEED_KEY", "aura:feed"),

		LLMBaseURL: sharedcfg.EnvOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   sharedcfg.EnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout: dur("LLM_TIMEOUT", "60s"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   dur("MAPBOX_TIMEOUT", "5s"),
		MapboxCacheSize: num("MAPBOX_CACHE_SIZE", 1000, 1),
		MapboxMinScore:  float("MAPBOX_MIN_RELEVANCE", 0),

		ExternalTimeout:    dur("EXTERNAL_TIMEOUT", "10s"),
		OpenWeatherAPIKey:  os.Getenv("OPENWEATHER_API_KEY"),
		GoogleSearchAPIKey: os.Getenv("GOOGLE_SEARCH_API_KEY"),
		GoogleSearchCX:     os.Getenv("GOOGLE_SEARCH_CX"),

		VerificationThreshold: num("VERIFICATION_THRESHOLD", 70, 0),

		MatchMetric:        strings.ToLower(sharedcfg.EnvOrDefault("MATCH_METRIC", MetricHaversine)),
		MatchRadiusMeters:  float("MATCH_RADIUS_METERS", 1000),
		MatchPlanarDegrees: float("MATCH_PLANAR_DEGREES", 0.01),

		IdleThreshold:     dur("IDLE_THRESHOLD", "10s"),
		CycleInterval:     dur("CYCLE_INTERVAL", "2s"),
		CycleTimeout:      dur("CYCLE_TIMEOUT", "2m"),
		Workers:           num("PIPELINE_WORKERS", 1, 1),
		SearchRate:        float("SEARCH_RATE", 1),
		MaxRateLimitWaits: num("RESILIENCE_MAX_RATE_LIMIT_WAITS", 0, 0),
	}

	if fb := os.Getenv("GEOCODE_FALLBACK"); fb != "" {
		c, err := parseCoordinate(fb)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid GEOCODE_FALLBACK: %w", err))
		}
		cfg.GeocodeFallback = c
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.FeedBackend {
	case FeedCSV:
		if c.FeedCSVPath == "" {
			return errors.New("FEED_CSV_PATH is required")
		}
	case FeedNews:
	case FeedKafka:
		if c.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required")
		}
	case FeedRedis:
		if c.RedisFeedKey == "" {
			return errors.New("REDIS_FEED_KEY is required")
		}
	default:
		return fmt.Errorf("invalid FEED_BACKEND %q", c.FeedBackend)
	}

	usesKafka := c.FeedBackend == FeedKafka || c.KafkaSinkEnabled
	if usesKafka && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaSinkEnabled && c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if c.MapboxMinScore > 1 {
		return errors.New("MAPBOX_MIN_RELEVANCE must be between 0 and 1")
	}
	if c.VerificationThreshold > 100 {
		return errors.New("VERIFICATION_THRESHOLD must be between 0 and 100")
	}
	switch c.MatchMetric {
	case MetricHaversine, MetricPlanar:
	default:
		return fmt.Errorf("invalid MATCH_METRIC %q", c.MatchMetric)
	}
	return nil
}

func parseCoordinate(s string) (*domain.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, errors.New(`want "lat,lon"`)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, errors.New("out of range")
	}
	return &domain.Coordinate{Lat: lat, Lon: lon}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
