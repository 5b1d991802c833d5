package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string

	// Trial registry (ClinicalTrials.gov v2)
	RegistryBaseURL     string
	RegistryTimeout     time.Duration
	RegistryMaxResults  int
	MatchingMaxTrials   int
	TrialStatusFilter   []string

	// LLM providers. Provider is one of "gemini", "openai", "bedrock".
	// When Fallback is set to a different provider, failed calls are retried
	// against it before degrading.
	LLMProvider      string
	LLMFallback      string
	LLMTimeout       time.Duration
	GeminiAPIKey     string
	GeminiModelID    string
	OpenAIAPIKey     string
	OpenAIModelID    string
	BedrockModelID   string
	AWSRegion        string
	WhisperModelID   string

	// Session storage. The in-memory store is the default; setting RedisAddr
	// switches session state to Redis with a 24h TTL.
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		RegistryBaseURL:    getEnv("REGISTRY_BASE_URL", "https://clinicaltrials.gov/api/v2"),
		RegistryTimeout:    getEnvAsDuration("REGISTRY_TIMEOUT", 30*time.Second),
		RegistryMaxResults: getEnvAsInt("REGISTRY_MAX_RESULTS", 10),
		MatchingMaxTrials:  getEnvAsInt("MATCHING_MAX_TRIALS", 5),
		TrialStatusFilter:  getEnvAsList("TRIAL_STATUS_FILTER", []string{"RECRUITING"}),

		LLMProvider:    strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "gemini"))),
		LLMFallback:    strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK", ""))),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 25*time.Second),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModelID:  getEnv("OPENAI_MODEL_ID", "gpt-4o-mini"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		WhisperModelID: getEnv("WHISPER_MODEL_ID", "whisper-1"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			values = append(values, p)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
