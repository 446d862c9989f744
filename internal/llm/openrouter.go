package llm

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterAdapter talks to OpenRouter over its OpenAI-compatible endpoint,
// authenticating with OPENROUTER_API_KEY (spec §6).
type OpenRouterAdapter struct {
	*openaiCompatClient
}

// NewOpenRouterAdapter builds an adapter for the given model, authenticated
// with apiKey.
func NewOpenRouterAdapter(apiKey, model string, maxTokens int) *OpenRouterAdapter {
	return &OpenRouterAdapter{newOpenAICompatClient("openrouter", openRouterBaseURL, apiKey, model, maxTokens, authBearer)}
}
