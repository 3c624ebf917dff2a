package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/assessment"
	"github.com/windfall/ielts_service/internal/client"
	"github.com/windfall/ielts_service/internal/config"
	"github.com/windfall/ielts_service/internal/credential"
	"github.com/windfall/ielts_service/internal/handler/http"
	"github.com/windfall/ielts_service/internal/handler/ws"
	"github.com/windfall/ielts_service/internal/logger"
	"github.com/windfall/ielts_service/internal/repository"
	"github.com/windfall/ielts_service/internal/server"
	"github.com/windfall/ielts_service/internal/service"
)

const devTokenTTL = 24 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("env", cfg.Environment).Str("textgen", cfg.TextGenProvider).Msg("Starting ielts_service")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Text generation provider; keys come from each user's credential row
	var textGen assessment.TextGenerator
	model := cfg.TextGenModel
	switch strings.ToLower(cfg.TextGenProvider) {
	case "gemini":
		textGen = client.NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiModel, cfg.ProviderTimeout)
		model = cfg.GeminiModel
	default:
		textGen = client.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.ProviderTimeout)
	}

	// Each speaking facade owns one Deepgram client for its lifetime
	openSpeech := func() (assessment.SpeechClient, error) {
		return client.NewDeepgramClient(cfg.DeepgramBaseURL, cfg.ProviderTimeout), nil
	}

	// Initialize Postgres Client, or fall back to memory
	var postgresClient *client.PostgresClient
	var credRepo repository.CredentialRepository
	var writingRepo repository.WritingRepository
	var speakingRepo repository.SpeakingRepository
	if cfg.DatabaseURL != "" {
		postgresClient, err = client.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Postgres client")
		}
		log.Info().Msg("Postgres client initialized")
		practice := repository.NewPostgresPracticeRepository(postgresClient)
		credRepo = repository.NewPostgresCredentialRepository(postgresClient)
		writingRepo, speakingRepo = practice, practice
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		mem := repository.NewMemoryStore()
		credRepo, writingRepo, speakingRepo = mem, mem, mem
	}

	// Initialize Redis client
	var redisClient *client.RedisClient
	if cfg.RedisURL != "" {
		redisClient, err = client.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Redis client, continuing without cache and result queue")
			redisClient = nil
		} else {
			log.Info().Msg("Redis client initialized")
		}
	}

	var credStore credential.Store = credRepo
	var credCache service.CredentialCache
	var resultQueue service.ResultQueue
	if redisClient != nil {
		cached := credential.NewCachedStore(credRepo, redisClient, cfg.CredentialCacheTTL, logger.Component(log, "credential_cache"))
		credStore, credCache = cached, cached
		resultQueue = redisClient
	}

	archive, closeArchive := newArchive(ctx, cfg, log)

	var pubsubClient *client.PubSubClient
	var events service.EventPublisher
	if cfg.PubSubTopic != "" {
		pubsubClient, err = client.NewPubSubClient(ctx, cfg.GCPProjectID, cfg.PubSubTopic, cfg.GoogleCredentialsFile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Pub/Sub client, attempt events disabled")
		} else {
			log.Info().Str("topic", cfg.PubSubTopic).Msg("Pub/Sub client initialized")
			events = pubsubClient
		}
	}

	// Initialize assessment modules
	assessLog := logger.Component(log, "assessment")
	deps := assessment.Deps{
		Resolver:   credential.NewResolver(credStore, logger.Component(log, "credential")),
		Prompts:    assessment.NewPromptModule(textGen, assessment.WithModel(model), assessment.WithLogger(assessLog)),
		Grader:     assessment.NewGradingModule(textGen, assessment.WithModel(model), assessment.WithLogger(assessLog)),
		OpenSpeech: openSpeech,
	}

	// Initialize services
	authService := service.NewAuthService(jwtSecret(cfg, log))
	credentialService := service.NewCredentialService(credRepo, credCache, logger.Component(log, "credentials"))
	writingService := service.NewWritingService(deps, writingRepo, events, logger.Component(log, "writing"))
	speakingService := service.NewSpeakingService(deps, speakingRepo, resultQueue, archive, events, service.SpeakingConfig{
		ResultTTL:  cfg.SpeakingResultTTL,
		ResultWait: cfg.SpeakingResultWait,
	}, logger.Component(log, "speaking"))

	if cfg.IsDevelopment() {
		if token, err := authService.IssueToken("dev-user", devTokenTTL); err == nil {
			log.Info().Str("user_id", "dev-user").Str("token", token).Msg("Development token issued")
		}
	}

	// Initialize handlers
	checks := map[string]http.Pinger{}
	if postgresClient != nil {
		checks["postgres"] = postgresClient
	}
	if redisClient != nil {
		checks["redis"] = redisClient
	}
	healthHandler := http.NewHealthHandler(checks)

	recordingHandler := ws.NewHandler(speakingService, cfg.RecordingsDir, logger.Component(log, "recording"))
	hub := server.NewWebSocketHub(recordingHandler, cfg.CORSAllowedOrigins, log)
	hubCtx, stopHub := context.WithCancel(ctx)
	go hub.Run(hubCtx)

	// Initialize HTTP server
	httpServer := server.NewHTTPServer(cfg, log, server.Handlers{
		Health:     healthHandler,
		Writing:    http.NewWritingHandler(log, writingService),
		Speaking:   http.NewSpeakingHandler(log, speakingService),
		Credential: http.NewCredentialHandler(log, credentialService),
		Recording:  hub,
	}, authService)

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	log.Info().
		Str("http_addr", cfg.HTTPAddress()).
		Str("recordings_dir", cfg.RecordingsDir).
		Msg("Servers started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down servers...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Stop recordings, then let background grading finish
	log.Info().Int("clients", hub.ClientCount()).Msg("Closing recording connections")
	stopHub()
	hub.Wait()
	speakingService.Wait()

	// Close clients
	closeArchive()
	if pubsubClient != nil {
		pubsubClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if postgresClient != nil {
		postgresClient.Close()
	}

	log.Info().Msg("Server stopped")
}

// newArchive builds the configured recording archive. The returned closer is never nil.
func newArchive(ctx context.Context, cfg *config.Config, log zerolog.Logger) (service.Archiver, func()) {
	switch strings.ToLower(cfg.ArchiveBackend) {
	case "r2":
		// Initialize Cloudflare R2 Client (using S3 protocol)
		r2, err := client.NewCloudflareClient(ctx,
			cfg.CloudflareAccessKeyID,
			cfg.CloudflareSecretKey,
			cfg.CloudflareR2Endpoint,
			cfg.CloudflareBucketName,
			cfg.CloudflarePublicURL,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Cloudflare client, recordings stay local")
			return nil, func() {}
		}
		log.Info().Str("bucket", cfg.CloudflareBucketName).Msg("Cloudflare R2 client initialized")
		return r2, func() {}

	case "gcs":
		gcs, err := client.NewStorageClient(ctx, cfg.GCSBucketName, cfg.GoogleCredentialsFile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Cloud Storage client, recordings stay local")
			return nil, func() {}
		}
		log.Info().Str("bucket", cfg.GCSBucketName).Msg("Cloud Storage client initialized")
		return gcs, func() { gcs.Close() }

	default:
		log.Warn().Msg("ARCHIVE_BACKEND not set, recordings stay local")
		return nil, func() {}
	}
}

// jwtSecret returns the configured secret. Development runs without one get
// a random secret so the startup token still works.
func jwtSecret(cfg *config.Config, log zerolog.Logger) string {
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret
	}
	log.Warn().Msg("JWT_SECRET not set, using a random secret for this process")
	return uuid.New().String()
}
