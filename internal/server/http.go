package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/config"
	httphandler "github.com/windfall/ielts_service/internal/handler/http"
	"github.com/windfall/ielts_service/internal/middleware"
	"github.com/windfall/ielts_service/pkg/response"
)

// Handlers groups the route handlers.
type Handlers struct {
	Health     *httphandler.HealthHandler
	Writing    *httphandler.WritingHandler
	Speaking   *httphandler.SpeakingHandler
	Credential *httphandler.CredentialHandler
	Recording  http.Handler
}

// HTTPServer represents the HTTP server.
type HTTPServer struct {
	server *http.Server
	log    zerolog.Logger
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(
	cfg *config.Config,
	log zerolog.Logger,
	handlers Handlers,
	auth middleware.TokenValidator,
) *HTTPServer {
	server := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      NewRouter(cfg, log, handlers, auth),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &HTTPServer{
		server: server,
		log:    log,
	}
}

// NewRouter builds the chi router.
func NewRouter(cfg *config.Config, log zerolog.Logger, handlers Handlers, auth middleware.TokenValidator) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "route not found")
	})

	// Health endpoints (public)
	r.Get("/health", handlers.Health.Health)
	r.Get("/ready", handlers.Health.Ready)
	r.Get("/live", handlers.Health.Live)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(auth))

		// Recording stream; kept out of the compressed group
		if handlers.Recording != nil {
			r.Get("/speaking/recording", handlers.Recording.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Compress(5))

			// Writing Task 2
			r.Post("/writing/prompts", handlers.Writing.GeneratePrompt)
			r.Post("/writing/answers", handlers.Writing.SubmitEssay)
			r.Get("/writing/answers/recent", handlers.Writing.RecentAnswers)

			// Speaking Part 2 (2-step async pattern when Redis is configured)
			r.Post("/speaking/prompts", handlers.Speaking.GeneratePrompt)
			r.Post("/speaking/answers", handlers.Speaking.SubmitAudio)
			r.Get("/speaking/result", handlers.Speaking.GetResult)
			r.Get("/speaking/answers/recent", handlers.Speaking.RecentAnswers)

			// API key settings
			r.Get("/credentials", handlers.Credential.Get)
			r.Put("/credentials", handlers.Credential.Save)
			r.Delete("/credentials", handlers.Credential.Delete)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
