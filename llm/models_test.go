package llm

import (
	"math"
	"testing"
)

func TestGetModel(t *testing.T) {
	tests := []struct {
		name             string
		model            string
		expectedExists   bool
		expectedProvider Provider
	}{
		{"OpenAI GPT-4o", ModelGPT4o, true, ProviderOpenAI},
		{"OpenAI GPT-4o Mini", ModelGPT4oMini, true, ProviderOpenAI},
		{"Anthropic Claude 3.5 Haiku", ModelClaude35Haiku, true, ProviderAnthropic},
		{"Anthropic Claude Sonnet 4", ModelClaudeSonnet4, true, ProviderAnthropic},
		{"Invalid Model", "invalid-model", false, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			model, err := GetModel(test.model)
			exists := err == nil
			if exists != test.expectedExists {
				t.Fatalf("Expected exists=%v, got %v", test.expectedExists, exists)
			}
			if exists && model.Provider != test.expectedProvider {
				t.Errorf("Expected provider %s, got %s", test.expectedProvider, model.Provider)
			}
		})
	}
}

func TestCheckProvider(t *testing.T) {
	if err := CheckProvider(ModelGPT4oMini, ProviderOpenAI); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckProvider(ModelGPT4oMini, ProviderAnthropic); err == nil {
		t.Error("expected provider mismatch")
	}
	if err := CheckProvider("llama3.1:8b", ProviderOpenAI); err != nil {
		t.Errorf("uncatalogued models should pass, got %v", err)
	}
}

func TestDefaultModel(t *testing.T) {
	for _, p := range []Provider{ProviderOpenAI, ProviderAnthropic} {
		m, err := GetModel(DefaultModel(p))
		if err != nil {
			t.Fatalf("default for %s not catalogued: %v", p, err)
		}
		if m.Provider != p {
			t.Errorf("default for %s belongs to %s", p, m.Provider)
		}
	}
}

func TestModelEstimateCost(t *testing.T) {
	m, _ := GetModel(ModelGPT4oMini)
	got := m.EstimateCost(1_000_000, 1_000_000)
	if math.Abs(got-0.75) > 1e-9 {
		t.Errorf("Expected 0.75, got %f", got)
	}
}

func TestGetModelsByProvider(t *testing.T) {
	models := GetModelsByProvider(ProviderAnthropic)
	if len(models) == 0 {
		t.Fatal("expected anthropic models")
	}
	for i := 1; i < len(models); i++ {
		if models[i-1].Name > models[i].Name {
			t.Errorf("models not sorted: %s > %s", models[i-1].Name, models[i].Name)
		}
	}
}
