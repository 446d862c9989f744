// Package credentials resolves secrets for the LLM router and tool layer
// from the environment variables named in spec §6.
package credentials

import "os"

// Credentials resolves API keys/tokens for the providers and integrations
// the daemon talks to. All values come from the process environment; there
// is no credentials file here, since the onboarding flow that would manage
// one is out of core scope per spec §1.
type Credentials struct {
	lookup func(string) string
}

// New returns a Credentials resolver backed by os.Getenv.
func New() *Credentials {
	return &Credentials{lookup: os.Getenv}
}

// NewWithLookup returns a resolver backed by a custom lookup function, for
// tests that don't want to mutate the real process environment.
func NewWithLookup(lookup func(string) string) *Credentials {
	return &Credentials{lookup: lookup}
}

// OpenRouterAPIKey returns OPENROUTER_API_KEY.
func (c *Credentials) OpenRouterAPIKey() string { return c.get("OPENROUTER_API_KEY") }

// BraveAPIKey returns BRAVE_API_KEY.
func (c *Credentials) BraveAPIKey() string { return c.get("BRAVE_API_KEY") }

// TelegramBotToken returns TELEGRAM_BOT_TOKEN (consumed by the telegram
// bridge, an external collaborator per spec §1 — exposed here only because
// the daemon must not itself crash when the variable is unset).
func (c *Credentials) TelegramBotToken() string { return c.get("TELEGRAM_BOT_TOKEN") }

// OllamaBaseURL returns OLLAMA_BASE_URL, or a supplied default.
func (c *Credentials) OllamaBaseURL(fallback string) string {
	if v := c.get("OLLAMA_BASE_URL"); v != "" {
		return v
	}
	return fallback
}

func (c *Credentials) get(name string) string {
	if c == nil || c.lookup == nil {
		return os.Getenv(name)
	}
	return c.lookup(name)
}
