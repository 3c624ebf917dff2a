package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Host     string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"SERVER_HTTP_PORT" default:"8080"`

	Environment string `envconfig:"SERVER_ENV" default:"development"`

	// Timeouts
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Text generation provider. Keys are per user and live in the credential store.
	TextGenProvider string        `envconfig:"TEXTGEN_PROVIDER" default:"openai"`
	OpenAIBaseURL   string        `envconfig:"OPENAI_BASE_URL"`
	TextGenModel    string        `envconfig:"TEXTGEN_MODEL" default:"gpt-4o-mini"`
	GeminiBaseURL   string        `envconfig:"GEMINI_BASE_URL"`
	GeminiModel     string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"60s"`

	// Deepgram speech-to-text
	DeepgramBaseURL string `envconfig:"DEEPGRAM_BASE_URL" default:"https://api.deepgram.com"`

	// Capture
	RecordingsDir string `envconfig:"RECORDINGS_DIR" default:"recordings"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Redis
	RedisURL           string        `envconfig:"REDIS_URL"`
	CredentialCacheTTL time.Duration `envconfig:"CREDENTIAL_CACHE_TTL" default:"5m"`
	SpeakingResultTTL  time.Duration `envconfig:"SPEAKING_RESULT_TTL" default:"60s"`
	SpeakingResultWait time.Duration `envconfig:"SPEAKING_RESULT_WAIT" default:"10s"`

	// Recording archive: "r2", "gcs" or empty to keep recordings local only.
	ArchiveBackend string `envconfig:"ARCHIVE_BACKEND"`

	// Cloudflare R2
	CloudflareAccessKeyID string `envconfig:"CLOUDFLARE_ACCESS_KEY_ID"`
	CloudflareSecretKey   string `envconfig:"CLOUDFLARE_SECRET_ACCESS_KEY"`
	CloudflareR2Endpoint  string `envconfig:"CLOUDFLARE_R2_ENDPOINT"`
	CloudflarePublicURL   string `envconfig:"CLOUDFLARE_PUBLIC_URL"`
	CloudflareBucketName  string `envconfig:"CLOUDFLARE_BUCKET_NAME"`

	// Google Cloud
	GCPProjectID          string `envconfig:"GCP_PROJECT_ID"`
	GoogleCredentialsFile string `envconfig:"GOOGLE_CREDENTIALS_FILE"`
	GCSBucketName         string `envconfig:"GCS_BUCKET_NAME"`
	PubSubTopic           string `envconfig:"PUBSUB_TOPIC"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET"`

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	CORSAllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Accept,Authorization,Content-Type,X-Request-ID"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values envconfig cannot express as tags.
func (c *Config) Validate() error {
	switch strings.ToLower(c.TextGenProvider) {
	case "openai", "gemini":
	default:
		return fmt.Errorf("invalid TEXTGEN_PROVIDER %q (use openai or gemini)", c.TextGenProvider)
	}

	switch strings.ToLower(c.ArchiveBackend) {
	case "":
	case "r2":
		if c.CloudflareAccessKeyID == "" || c.CloudflareSecretKey == "" || c.CloudflareR2Endpoint == "" || c.CloudflareBucketName == "" {
			return fmt.Errorf("ARCHIVE_BACKEND=r2 requires the CLOUDFLARE_* settings")
		}
	case "gcs":
		if c.GCSBucketName == "" {
			return fmt.Errorf("ARCHIVE_BACKEND=gcs requires GCS_BUCKET_NAME")
		}
	default:
		return fmt.Errorf("invalid ARCHIVE_BACKEND %q (use r2, gcs or leave empty)", c.ArchiveBackend)
	}

	if c.PubSubTopic != "" && c.GCPProjectID == "" {
		return fmt.Errorf("PUBSUB_TOPIC requires GCP_PROJECT_ID")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

// HTTPAddress returns the HTTP server address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
