package main

import (
	"context"
	"testing"

	appconfig "github.com/trialmatch-ai/platform/internal/config"
	"github.com/trialmatch-ai/platform/internal/conversation"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

func TestBuildSessionStoreDefaultsToMemory(t *testing.T) {
	logger := logging.New("error")
	store := buildSessionStore(&appconfig.Config{}, logger)
	if _, ok := store.(*conversation.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestBuildSessionStoreUsesRedisWhenConfigured(t *testing.T) {
	logger := logging.New("error")
	store := buildSessionStore(&appconfig.Config{RedisAddr: "localhost:6379"}, logger)
	if _, ok := store.(*conversation.RedisStore); !ok {
		t.Fatalf("expected redis store, got %T", store)
	}
}

func TestNewProviderClientRejectsUnknownProvider(t *testing.T) {
	_, _, err := newProviderClient(context.Background(), &appconfig.Config{}, "llamafile")
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewProviderClientRequiresGeminiKey(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "gemini"}
	_, _, err := newProviderClient(context.Background(), cfg, "gemini")
	if err == nil {
		t.Fatalf("expected error when GEMINI_API_KEY is missing")
	}
}
