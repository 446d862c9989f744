package llm

import "testing"

func TestNewOllamaAdapterDefaultsBaseURL(t *testing.T) {
	a := NewOllamaAdapter("", "llama3", 512)
	if a.baseURL != defaultOllamaBaseURL {
		t.Errorf("expected default base URL, got %q", a.baseURL)
	}
	if a.Name() != "ollama" {
		t.Errorf("expected name ollama, got %q", a.Name())
	}
}

func TestNewOllamaAdapterHonorsOverride(t *testing.T) {
	a := NewOllamaAdapter("http://example.internal:11434/v1", "llama3", 512)
	if a.baseURL != "http://example.internal:11434/v1" {
		t.Errorf("expected overridden base URL, got %q", a.baseURL)
	}
}

func TestNewOpenRouterAdapter(t *testing.T) {
	a := NewOpenRouterAdapter("sk-or-test", "anthropic/claude", 1024)
	if a.Name() != "openrouter" {
		t.Errorf("expected name openrouter, got %q", a.Name())
	}
	if a.baseURL != openRouterBaseURL {
		t.Errorf("expected openrouter base URL, got %q", a.baseURL)
	}
}
