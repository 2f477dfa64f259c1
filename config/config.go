package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the Postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds the Redis connection settings. URL, when set, takes
// precedence over host and port.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	URL      string
}

// GenerationConfig holds the external generation capability settings.
type GenerationConfig struct {
	APIURL         string
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
}

// ResolverConfig holds the ingredient resolution thresholds.
type ResolverConfig struct {
	FuzzyThreshold    float64
	SemanticThreshold float64
	FuzzyLimit        int
	SemanticLimit     int
	LookupConcurrency int
}

// PlannerConfig holds the menu orchestration settings.
type PlannerConfig struct {
	BatchSize    int
	FixesPerWeek int
	FixCap       int
	Concurrency  int
}

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Generation GenerationConfig
	Resolver   ResolverConfig
	Planner    PlannerConfig
}

// Load reads configuration from the environment, with a .env file as a
// development convenience. Defaults cover everything but credentials.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetString("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSL_MODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			URL:      v.GetString("REDIS_URL"),
		},
		Generation: GenerationConfig{
			APIURL:         v.GetString("GENERATION_API_URL"),
			APIKey:         v.GetString("GENERATION_API_KEY"),
			Model:          v.GetString("GENERATION_MODEL"),
			EmbeddingModel: v.GetString("GENERATION_EMBEDDING_MODEL"),
			Timeout:        v.GetDuration("GENERATION_TIMEOUT"),
			MaxAttempts:    v.GetInt("GENERATION_MAX_ATTEMPTS"),
			BackoffBase:    v.GetDuration("GENERATION_BACKOFF_BASE"),
		},
		Resolver: ResolverConfig{
			FuzzyThreshold:    v.GetFloat64("RESOLVER_FUZZY_THRESHOLD"),
			SemanticThreshold: v.GetFloat64("RESOLVER_SEMANTIC_THRESHOLD"),
			FuzzyLimit:        v.GetInt("RESOLVER_FUZZY_LIMIT"),
			SemanticLimit:     v.GetInt("RESOLVER_SEMANTIC_LIMIT"),
			LookupConcurrency: v.GetInt("RESOLVER_LOOKUP_CONCURRENCY"),
		},
		Planner: PlannerConfig{
			BatchSize:    v.GetInt("PLANNER_BATCH_SIZE"),
			FixesPerWeek: v.GetInt("PLANNER_FIXES_PER_WEEK"),
			FixCap:       v.GetInt("PLANNER_FIX_CAP"),
			Concurrency:  v.GetInt("PLANNER_CONCURRENCY"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "kondate")
	v.SetDefault("DB_SSL_MODE", "disable")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("GENERATION_MODEL", "kondate-chef-1")
	v.SetDefault("GENERATION_EMBEDDING_MODEL", "kondate-embed-384")
	v.SetDefault("GENERATION_TIMEOUT", "60s")
	v.SetDefault("GENERATION_MAX_ATTEMPTS", 5)
	v.SetDefault("GENERATION_BACKOFF_BASE", "500ms")

	v.SetDefault("RESOLVER_FUZZY_THRESHOLD", 0.15)
	v.SetDefault("RESOLVER_SEMANTIC_THRESHOLD", 0.72)
	v.SetDefault("RESOLVER_FUZZY_LIMIT", 10)
	v.SetDefault("RESOLVER_SEMANTIC_LIMIT", 15)
	v.SetDefault("RESOLVER_LOOKUP_CONCURRENCY", 8)

	v.SetDefault("PLANNER_BATCH_SIZE", 6)
	v.SetDefault("PLANNER_FIXES_PER_WEEK", 2)
	v.SetDefault("PLANNER_FIX_CAP", 12)
	v.SetDefault("PLANNER_CONCURRENCY", 0)
}

func (c *Config) validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Generation.APIKey == "" {
		return fmt.Errorf("GENERATION_API_KEY is required")
	}
	if c.Generation.APIURL == "" {
		return fmt.Errorf("GENERATION_API_URL is required")
	}
	if c.Resolver.FuzzyThreshold < 0 || c.Resolver.FuzzyThreshold > 1 {
		return fmt.Errorf("RESOLVER_FUZZY_THRESHOLD must be in [0, 1]")
	}
	if c.Resolver.SemanticThreshold < 0 || c.Resolver.SemanticThreshold > 1 {
		return fmt.Errorf("RESOLVER_SEMANTIC_THRESHOLD must be in [0, 1]")
	}
	if c.Planner.BatchSize < 1 {
		return fmt.Errorf("PLANNER_BATCH_SIZE must be at least 1")
	}
	return nil
}
