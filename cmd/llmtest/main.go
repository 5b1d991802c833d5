package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/trialmatch-ai/platform/internal/llm"
)

// Quick manual check that the configured LLM providers respond with the kind
// of structured output the matching pipeline depends on.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	systemPrompt := "You are a medical information extraction system. Respond with JSON only."
	prompt := `Extract patient attributes from this message as a JSON object: "I'm a 54 year old woman in Austin, Texas with stage II breast cancer."`

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		fmt.Println("[1] Skipping Gemini test (GEMINI_API_KEY not set)")
	} else {
		fmt.Println("[1] Testing Gemini...")
		model := os.Getenv("GEMINI_MODEL_ID")
		if model == "" {
			model = "gemini-2.5-flash"
		}
		client, err := llm.NewGeminiClient(ctx, geminiKey, model)
		if err != nil {
			fmt.Printf("    failed to create Gemini client: %v\n", err)
		} else {
			runExtraction(ctx, client, model, systemPrompt, prompt)
		}
	}

	openaiKey := os.Getenv("OPENAI_API_KEY")
	if openaiKey == "" {
		fmt.Println("[2] Skipping OpenAI test (OPENAI_API_KEY not set)")
	} else {
		fmt.Println("[2] Testing OpenAI...")
		model := os.Getenv("OPENAI_MODEL_ID")
		if model == "" {
			model = "gpt-4o-mini"
		}
		client, err := llm.NewOpenAIClient(openaiKey, model)
		if err != nil {
			fmt.Printf("    failed to create OpenAI client: %v\n", err)
		} else {
			runExtraction(ctx, client, model, systemPrompt, prompt)
		}
	}
}

func runExtraction(ctx context.Context, client llm.Client, model, systemPrompt, prompt string) {
	start := time.Now()
	raw, err := llm.GenerateJSON(ctx, client, model, systemPrompt, prompt, 0.1)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("    error after %v: %v\n", elapsed.Round(time.Millisecond), err)
		return
	}
	fmt.Printf("    response (%v):\n    %s\n", elapsed.Round(time.Millisecond), raw)
}
