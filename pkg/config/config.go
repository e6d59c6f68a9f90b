package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tubepulse/tubepulse/pkg/models"
	"github.com/tubepulse/tubepulse/pkg/retry"
)

// Config holds all tubepulse configuration.
type Config struct {
	Listen     string           `yaml:"listen" validate:"required"`
	DBPath     string           `yaml:"db_path" validate:"required"`
	Log        LogConfig        `yaml:"log"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	YouTube    YouTubeConfig    `yaml:"youtube"`
	Cache      CacheConfig      `yaml:"cache"`
	Retry      retry.Config     `yaml:"retry"`
	Validation ValidationConfig `yaml:"validation"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Budget     BudgetConfig     `yaml:"budget"`
	Router     RouterConfig     `yaml:"router"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// GeminiConfig defines the remote model API.
type GeminiConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url" validate:"required,url"`
	Model             string  `yaml:"model" validate:"required"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// YouTubeConfig defines the YouTube Data API client.
type YouTubeConfig struct {
	APIKey      string `yaml:"api_key"`
	Endpoint    string `yaml:"endpoint" validate:"omitempty,url"`
	MaxComments int    `yaml:"max_comments" validate:"gt=0"`
}

// CacheConfig controls the analysis caches.
type CacheConfig struct {
	Persist         bool          `yaml:"persist"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gte=0"`
	Sentiment       CacheTier     `yaml:"sentiment"`
	Batch           CacheTier     `yaml:"batch"`
}

// CacheTier sizes one cache.
type CacheTier struct {
	MaxSize int           `yaml:"max_size" validate:"gt=0"`
	TTL     time.Duration `yaml:"ttl" validate:"gt=0"`
}

// ValidationConfig bounds user input.
type ValidationConfig struct {
	MinCommentLength    int `yaml:"min_comment_length" validate:"gte=1"`
	MaxCommentLength    int `yaml:"max_comment_length" validate:"gtefield=MinCommentLength"`
	MaxChatLength       int `yaml:"max_chat_length" validate:"gte=1"`
	MinCategorizeLength int `yaml:"min_categorize_length" validate:"gte=1"`
}

// TimeoutConfig sets per-call deadlines for each model task.
type TimeoutConfig struct {
	Sentiment  time.Duration `yaml:"sentiment" validate:"gt=0"`
	Categorize time.Duration `yaml:"categorize" validate:"gt=0"`
	Chat       time.Duration `yaml:"chat" validate:"gt=0"`
	Insights   time.Duration `yaml:"insights" validate:"gt=0"`
}

// AnalysisConfig controls batch processing.
type AnalysisConfig struct {
	Concurrency int `yaml:"concurrency" validate:"gte=1"`
}

// BreakerConfig controls the per-model circuit breaker.
type BreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio" validate:"gte=0,lte=1"`
	Interval     time.Duration `yaml:"interval"`
	OpenTimeout  time.Duration `yaml:"open_timeout"`
}

// BudgetConfig controls budget enforcement.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies" validate:"dive"`
}

// RouterConfig maps model tasks to ordered fallback chains.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes" validate:"dive"`
}

// RouteConfig lists the models to try for a task, in order.
type RouteConfig struct {
	Task   string   `yaml:"task" validate:"required"`
	Models []string `yaml:"models" validate:"min=1,dive,required"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "tubepulse.db",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Gemini: GeminiConfig{
			BaseURL:           "https://generativelanguage.googleapis.com",
			Model:             "gemini-2.5-flash",
			RequestsPerSecond: 5,
			Burst:             5,
		},
		YouTube: YouTubeConfig{
			MaxComments: 100,
		},
		Cache: CacheConfig{
			Persist:         true,
			CleanupInterval: 10 * time.Minute,
			Sentiment:       CacheTier{MaxSize: 1000, TTL: 24 * time.Hour},
			Batch:           CacheTier{MaxSize: 100, TTL: 48 * time.Hour},
		},
		Retry: retry.DefaultConfig(),
		Validation: ValidationConfig{
			MinCommentLength:    1,
			MaxCommentLength:    10000,
			MaxChatLength:       5000,
			MinCategorizeLength: 3,
		},
		Timeouts: TimeoutConfig{
			Sentiment:  30 * time.Second,
			Categorize: 10 * time.Second,
			Chat:       30 * time.Second,
			Insights:   30 * time.Second,
		},
		Analysis: AnalysisConfig{
			Concurrency: 1,
		},
		Breaker: BreakerConfig{
			Enabled:      true,
			MinRequests:  5,
			FailureRatio: 0.6,
			Interval:     time.Minute,
			OpenTimeout:  30 * time.Second,
		},
	}
}

// Load reads a YAML config file and expands environment variables. Variables from a
// .env file in the working directory are loaded first; a missing .env is not an error.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills API keys left empty by the file from the environment.
func (c *Config) applyEnv() {
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.YouTube.APIKey == "" {
		c.YouTube.APIKey = os.Getenv("YOUTUBE_API_KEY")
	}
}
