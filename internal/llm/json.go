package llm

import (
	"context"
	"fmt"
	"strings"
)

const jsonOnlyInstruction = "Respond ONLY with valid JSON. No explanations or markdown."

// GenerateJSON runs a completion expected to yield JSON. The system prompt is
// extended with a JSON-only instruction and a low temperature is used unless
// the caller overrides it. The returned text has markdown fences stripped but
// is otherwise raw; callers unmarshal it themselves.
func GenerateJSON(ctx context.Context, client Client, model, systemPrompt, prompt string, temperature float32) (string, error) {
	system := jsonOnlyInstruction
	if strings.TrimSpace(systemPrompt) != "" {
		system = systemPrompt + "\n\n" + jsonOnlyInstruction
	}

	resp, err := client.Complete(ctx, Request{
		Model:       model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   1024,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: json generation failed: %w", err)
	}
	return StripFences(resp.Text), nil
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

// ExtractJSONObject locates the outermost JSON object in a model reply.
// Models occasionally wrap JSON in prose despite instructions.
func ExtractJSONObject(raw string) string {
	return extractDelimited(StripFences(raw), '{', '}')
}

// ExtractJSONArray locates the outermost JSON array in a model reply.
func ExtractJSONArray(raw string) string {
	return extractDelimited(StripFences(raw), '[', ']')
}

func extractDelimited(text string, open, closing byte) string {
	if strings.HasPrefix(text, string(open)) {
		return text
	}
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, closing)
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
