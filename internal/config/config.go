package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	TreePath     string
	TreeMaxDepth int

	// Open-Meteo forecast configuration.
	ForecastEnabled   bool
	ForecastBaseURL   string
	ForecastLatitude  float64
	ForecastLongitude float64
	ForecastTimezone  string
	ForecastTimeout   time.Duration
	ForecastCacheSize int
	ForecastCacheTTL  time.Duration

	// Prediction events are published only when brokers are configured.
	KafkaBrokers         []string
	KafkaPredictionTopic string

	LayoutNodeBreadth  float64
	LayoutLevelSpacing float64
	LayoutPaddingX     float64
	LayoutPaddingY     float64
}

// PublishEnabled reports whether prediction events should go to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:             sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,
		TreePath:             sharedcfg.EnvOrDefault("TREE_PATH", "data/tree.json"),
		ForecastBaseURL:      sharedcfg.EnvOrDefault("FORECAST_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
		ForecastTimezone:     sharedcfg.EnvOrDefault("FORECAST_TIMEZONE", "Asia/Jakarta"),
		KafkaPredictionTopic: sharedcfg.EnvOrDefault("KAFKA_PREDICTION_TOPIC", "rain-predictions"),
	}

	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	p := parser{}
	cfg.TreeMaxDepth = p.positiveInt("TREE_MAX_DEPTH", 64)
	cfg.ForecastEnabled = p.boolean("FORECAST_ENABLED", true)
	cfg.ForecastLatitude = p.float("FORECAST_LATITUDE", 0.5417)
	cfg.ForecastLongitude = p.float("FORECAST_LONGITUDE", 123.0568)
	cfg.ForecastTimeout = p.positiveDuration("FORECAST_TIMEOUT", 5*time.Second)
	cfg.ForecastCacheSize = p.positiveInt("FORECAST_CACHE_SIZE", 64)
	cfg.ForecastCacheTTL = p.positiveDuration("FORECAST_CACHE_TTL", 30*time.Minute)
	cfg.LayoutNodeBreadth = p.positiveFloat("LAYOUT_NODE_BREADTH", 90)
	cfg.LayoutLevelSpacing = p.positiveFloat("LAYOUT_LEVEL_SPACING", 260)
	cfg.LayoutPaddingX = p.nonNegativeFloat("LAYOUT_PADDING_X", 140)
	cfg.LayoutPaddingY = p.nonNegativeFloat("LAYOUT_PADDING_Y", 100)
	if p.err != nil {
		return nil, p.err
	}

	if cfg.TreePath == "" {
		return nil, errors.New("TREE_PATH is required")
	}
	if cfg.ForecastLatitude < -90 || cfg.ForecastLatitude > 90 {
		return nil, errors.New("invalid FORECAST_LATITUDE: must be within [-90, 90]")
	}
	if cfg.ForecastLongitude < -180 || cfg.ForecastLongitude > 180 {
		return nil, errors.New("invalid FORECAST_LONGITUDE: must be within [-180, 180]")
	}
	if cfg.ForecastEnabled && cfg.ForecastBaseURL == "" {
		return nil, errors.New("FORECAST_ENABLED is true but FORECAST_BASE_URL is empty")
	}
	if cfg.PublishEnabled() && cfg.KafkaPredictionTopic == "" {
		return nil, errors.New("KAFKA_PREDICTION_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// parser reads typed variables and keeps the first error, so Load can
// check once after all of them.
type parser struct {
	err error
}

func (p *parser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (p *parser) fail(key, value, want string) {
	p.err = fmt.Errorf("invalid %s %q: %s", key, value, want)
}

func (p *parser) positiveInt(key string, def int) int {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		p.fail(key, s, "must be a positive integer")
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, s, "must be a number")
		return def
	}
	return f
}

func (p *parser) positiveFloat(key string, def float64) float64 {
	f := p.float(key, def)
	if p.err == nil && f <= 0 {
		p.fail(key, os.Getenv(key), "must be positive")
	}
	return f
}

func (p *parser) nonNegativeFloat(key string, def float64) float64 {
	f := p.float(key, def)
	if p.err == nil && f < 0 {
		p.fail(key, os.Getenv(key), "must not be negative")
	}
	return f
}

func (p *parser) positiveDuration(key string, def time.Duration) time.Duration {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.fail(key, s, "must be a positive duration")
		return def
	}
	return d
}

func (p *parser) boolean(key string, def bool) bool {
	s, ok := p.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, s, "must be true or false")
		return def
	}
	return b
}
