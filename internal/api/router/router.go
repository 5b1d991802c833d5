package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trialmatch-ai/platform/internal/conversation"
	httpmiddleware "github.com/trialmatch-ai/platform/internal/http/middleware"
	"github.com/trialmatch-ai/platform/internal/trials"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *conversation.Handler
	TrialsHandler      *trials.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.ChatHandler != nil {
			api.Post("/chat", cfg.ChatHandler.Chat)
			api.Post("/chat/transcribe", cfg.ChatHandler.Transcribe)
			api.Get("/chat/session/{sessionID}", cfg.ChatHandler.GetSession)
			api.Delete("/chat/session/{sessionID}", cfg.ChatHandler.DeleteSession)
		}
		if cfg.TrialsHandler != nil {
			api.Get("/trials/search", cfg.TrialsHandler.Search)
			api.Get("/trials/{nctID}", cfg.TrialsHandler.Get)
		}
	})

	return r
}
