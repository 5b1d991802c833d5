package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/trialmatch-ai/platform/internal/llm"
	"github.com/trialmatch-ai/platform/pkg/logging"
)

type stubLLM struct {
	text string
	err  error
}

func (s *stubLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Text: s.text}, nil
}

func TestExtractMergesAttributes(t *testing.T) {
	client := &stubLLM{text: "```json\n" + `{
		"age": 58,
		"biological_sex": "female",
		"primary_condition": "ovarian cancer",
		"country": "Canada",
		"current_medications": ["tamoxifen"],
		"diagnosis_date": null
	}` + "\n```"}

	ex := NewExtractor(client, "test-model", logging.Default())
	out := ex.Extract(context.Background(), "I'm a 58 year old woman in Canada with ovarian cancer, on tamoxifen", Profile{})

	if !out.Updated() {
		t.Fatal("expected extraction to report updates")
	}
	if out.Profile.Age == nil || *out.Profile.Age != 58 {
		t.Errorf("age not merged: %v", out.Profile.Age)
	}
	if out.Profile.PrimaryCondition != "ovarian cancer" {
		t.Errorf("condition not merged: %q", out.Profile.PrimaryCondition)
	}
	if len(out.Profile.CurrentMedications) != 1 {
		t.Errorf("medications not merged: %v", out.Profile.CurrentMedications)
	}
	if _, ok := out.Attributes["diagnosis_date"]; ok {
		t.Error("null attributes must be dropped")
	}
	if out.Confidence != 1.0 {
		t.Errorf("all four key fields present, expected confidence 1.0, got %v", out.Confidence)
	}
}

func TestExtractPartialConfidence(t *testing.T) {
	client := &stubLLM{text: `{"age": 30, "smoking_status": "never"}`}
	ex := NewExtractor(client, "test-model", logging.Default())

	out := ex.Extract(context.Background(), "I'm 30 and never smoked", Profile{})
	if out.Confidence != 0.25 {
		t.Errorf("one of four key fields, expected 0.25, got %v", out.Confidence)
	}
}

func TestExtractDegradesOnError(t *testing.T) {
	age := 44
	current := Profile{Age: &age}

	ex := NewExtractor(&stubLLM{err: errors.New("provider down")}, "m", logging.Default())
	out := ex.Extract(context.Background(), "hello", current)

	if out.Updated() {
		t.Error("failed extraction must report no updates")
	}
	if out.Profile.Age == nil || *out.Profile.Age != 44 {
		t.Errorf("failed extraction must leave profile unchanged: %v", out.Profile.Age)
	}
}

func TestExtractDegradesOnMalformedJSON(t *testing.T) {
	ex := NewExtractor(&stubLLM{text: "I could not find any information, sorry!"}, "m", logging.Default())
	out := ex.Extract(context.Background(), "hello", Profile{})

	if out.Updated() {
		t.Error("malformed JSON must degrade to an empty extraction")
	}
	if out.Confidence != 0 {
		t.Errorf("expected zero confidence, got %v", out.Confidence)
	}
}
