package llm

const defaultOllamaBaseURL = "http://localhost:11434/v1"

// OllamaAdapter talks to a local Ollama instance over its OpenAI-compatible
// endpoint. Base URL is overridden by OLLAMA_BASE_URL per spec §6.
type OllamaAdapter struct {
	*openaiCompatClient
}

// NewOllamaAdapter builds an adapter against baseURL (falls back to Ollama's
// default local port when empty).
func NewOllamaAdapter(baseURL, model string, maxTokens int) *OllamaAdapter {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaAdapter{newOpenAICompatClient("ollama", baseURL, "", model, maxTokens, authNone)}
}
