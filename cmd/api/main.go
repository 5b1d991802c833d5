package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/trialmatch-ai/platform/internal/api/router"
	appconfig "github.com/trialmatch-ai/platform/internal/config"
	"github.com/trialmatch-ai/platform/internal/conversation"
	"github.com/trialmatch-ai/platform/internal/gaps"
	"github.com/trialmatch-ai/platform/internal/llm"
	"github.com/trialmatch-ai/platform/internal/matching"
	"github.com/trialmatch-ai/platform/internal/observability/metrics"
	"github.com/trialmatch-ai/platform/internal/profile"
	"github.com/trialmatch-ai/platform/internal/questions"
	"github.com/trialmatch-ai/platform/internal/transcribe"
	"github.com/trialmatch-ai/platform/internal/trials"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

func main() {
	// Load .env file if present; real environments set variables directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting trial matching API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx := context.Background()

	client, model, err := buildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	client = llm.NewInstrumentedClient(client, model)
	client = llm.NewTimeoutClient(client, cfg.LLMTimeout)

	registry, err := trials.NewRegistryClient(trials.RegistryConfig{
		BaseURL: cfg.RegistryBaseURL,
		Timeout: cfg.RegistryTimeout,
	})
	if err != nil {
		logger.Error("failed to initialize registry client", "error", err)
		os.Exit(1)
	}

	store := buildSessionStore(cfg, logger)

	convMetrics := metrics.NewConversationMetrics(prometheus.DefaultRegisterer)

	service := conversation.NewService(
		store,
		profile.NewExtractor(client, model, logger),
		registry,
		matching.NewStructurer(client, model, logger),
		matching.NewEvaluator(client, model, logger),
		gaps.NewAnalyzer(client, model, logger),
		questions.NewPlanner(client, model, logger),
		conversation.NewComposer(client, model, logger),
		conversation.Config{
			RegistryMaxResults: cfg.RegistryMaxResults,
			MatchingMaxTrials:  cfg.MatchingMaxTrials,
			TrialStatusFilter:  cfg.TrialStatusFilter,
		},
		logger,
		convMetrics,
	)

	var transcriber transcribe.Transcriber
	if cfg.OpenAIAPIKey != "" {
		transcriber, err = transcribe.NewWhisperTranscriber(cfg.OpenAIAPIKey, cfg.WhisperModelID)
		if err != nil {
			logger.Error("failed to initialize transcriber", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("OPENAI_API_KEY not set, voice transcription disabled")
	}

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        conversation.NewHandler(service, transcriber, logger),
		TrialsHandler:      trials.NewHandler(registry, logger),
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildLLMClient constructs the configured provider, optionally chained with a
// fallback provider, and returns the model id requests should carry.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, string, error) {
	primary, model, err := newProviderClient(ctx, cfg, cfg.LLMProvider)
	if err != nil {
		return nil, "", err
	}

	if cfg.LLMFallback != "" && cfg.LLMFallback != cfg.LLMProvider {
		fallback, _, err := newProviderClient(ctx, cfg, cfg.LLMFallback)
		if err != nil {
			logger.Warn("fallback LLM provider unavailable", "provider", cfg.LLMFallback, "error", err)
		} else {
			return llm.NewFallbackClient(primary, fallback, logger.Logger), model, nil
		}
	}

	return primary, model, nil
}

func newProviderClient(ctx context.Context, cfg *appconfig.Config, provider string) (llm.Client, string, error) {
	switch provider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, "", fmt.Errorf("GEMINI_API_KEY is required for provider %q", provider)
		}
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.GeminiModelID, nil
	case "openai":
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModelID)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.OpenAIModelID, nil
	case "bedrock":
		if cfg.BedrockModelID == "" {
			return nil, "", fmt.Errorf("BEDROCK_MODEL_ID is required for provider %q", provider)
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, "", err
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg)), cfg.BedrockModelID, nil
	default:
		return nil, "", fmt.Errorf("unknown LLM provider %q", provider)
	}
}

func buildSessionStore(cfg *appconfig.Config, logger *logging.Logger) conversation.SessionStore {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory session store")
		return conversation.NewMemoryStore()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	logger.Info("using redis session store", "addr", cfg.RedisAddr)
	return conversation.NewRedisStore(redis.NewClient(opts), nil)
}
