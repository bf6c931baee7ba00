package config

import (
	"os"
	"strconv"
	"time"

	"github.com/switchmart/assistant-engine/internal/domain"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// External services
	EmbeddingAPIURL  string
	ReplyAPIURL      string
	ClassifierAPIURL string

	// Embedding provider
	EmbeddingDimension int

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	UseSupabase        bool

	// Local storage fallback
	SQLitePath string

	Retrieval   RetrievalConfig
	Negotiation NegotiationConfig
}

// RetrievalConfig tunes the two-corpus retriever and the context
// assembler. FAQ and game corpora carry separate thresholds because
// their text density differs.
type RetrievalConfig struct {
	FAQTopK         int
	FAQMinScore     float64
	GameTopK        int
	GameMinScore    float64
	ConfidenceFloor float64
	MaxContextChars int
}

// NegotiationConfig parameterizes the allowable-discount band. The
// concrete curve is configuration, not code: the base band is
// [FloorPct, FloorPct+SpreadPct], tightened by HighValueTighteningPct
// for carts above HighValueCutoff, widened by PerRejectionPct per
// rejection, and always clamped to CeilingPct.
type NegotiationConfig struct {
	FloorPct               float64
	SpreadPct              float64
	CeilingPct             float64
	PerRejectionPct        float64
	MaxRejections          int
	HighValueCutoff        float64
	HighValueTighteningPct float64
	LoyaltyBonusPct        float64
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		EmbeddingAPIURL:  getEnv("EMBEDDING_API_URL", "http://localhost:8091"),
		ReplyAPIURL:      getEnv("REPLY_API_URL", "http://localhost:8092"),
		ClassifierAPIURL: getEnv("CLASSIFIER_API_URL", "http://localhost:8093"),

		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 768),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		UseSupabase:        getEnv("USE_SUPABASE", "false") == "true",

		SQLitePath: getEnv("SQLITE_PATH", "assistant-engine.db"),

		Retrieval: RetrievalConfig{
			FAQTopK:         getEnvInt("RETRIEVAL_FAQ_TOP_K", 5),
			FAQMinScore:     getEnvFloat("RETRIEVAL_FAQ_MIN_SCORE", 0.35),
			GameTopK:        getEnvInt("RETRIEVAL_GAME_TOP_K", 5),
			GameMinScore:    getEnvFloat("RETRIEVAL_GAME_MIN_SCORE", 0.30),
			ConfidenceFloor: getEnvFloat("RETRIEVAL_CONFIDENCE_FLOOR", 0.50),
			MaxContextChars: getEnvInt("RETRIEVAL_MAX_CONTEXT_CHARS", 6000),
		},

		Negotiation: NegotiationConfig{
			FloorPct:               getEnvFloat("NEGOTIATION_FLOOR_PCT", 2),
			SpreadPct:              getEnvFloat("NEGOTIATION_SPREAD_PCT", 5),
			CeilingPct:             getEnvFloat("NEGOTIATION_CEILING_PCT", 15),
			PerRejectionPct:        getEnvFloat("NEGOTIATION_PER_REJECTION_PCT", 1.5),
			MaxRejections:          getEnvInt("NEGOTIATION_MAX_REJECTIONS", 3),
			HighValueCutoff:        getEnvFloat("NEGOTIATION_HIGH_VALUE_CUTOFF", 1500),
			HighValueTighteningPct: getEnvFloat("NEGOTIATION_HIGH_VALUE_TIGHTENING_PCT", 2),
			LoyaltyBonusPct:        getEnvFloat("NEGOTIATION_LOYALTY_BONUS_PCT", 2),
		},
	}
}

// Validate checks settings that must fail at startup rather than
// produce bad data at runtime. A dimension mismatch is a configuration
// error, not a data error.
func (c *Config) Validate() error {
	if c.EmbeddingDimension <= 0 {
		return &domain.ErrConfiguration{Setting: "EMBEDDING_DIMENSION", Message: "must be a positive integer"}
	}
	if c.EmbeddingAPIURL == "" {
		return &domain.ErrConfiguration{Setting: "EMBEDDING_API_URL", Message: "is required"}
	}
	if c.UseSupabase && c.SupabaseURL == "" {
		return &domain.ErrConfiguration{Setting: "SUPABASE_URL", Message: "required when USE_SUPABASE=true"}
	}
	n := c.Negotiation
	if n.FloorPct < 0 || n.CeilingPct < n.FloorPct {
		return &domain.ErrConfiguration{Setting: "NEGOTIATION_CEILING_PCT", Message: "band must satisfy 0 <= floor <= ceiling"}
	}
	if c.Retrieval.MaxContextChars <= 0 {
		return &domain.ErrConfiguration{Setting: "RETRIEVAL_MAX_CONTEXT_CHARS", Message: "must be positive"}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
