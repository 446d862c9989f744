package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RetryConfig bounds the router's retry/backoff behavior.
type RetryConfig struct {
	MaxRetries int
	MaxBackoff time.Duration
}

// DefaultRetryConfig is the CLI default: 5 retries, 60s backoff cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 5, MaxBackoff: 60 * time.Second}
}

const forceFallbackMarker = "/fallback"

// Router implements C10: chat_with_fallback, chat_stream_with_fallback, and
// chat_messages_stream over exactly two backends (Ollama, OpenRouter), per
// spec §4.8 and the provider set named in spec §6.
type Router struct {
	ollama     Provider
	openrouter Provider
	retry      RetryConfig
}

// NewRouter builds a Router over the two configured providers.
func NewRouter(ollama, openrouter Provider, retry RetryConfig) *Router {
	return &Router{ollama: ollama, openrouter: openrouter, retry: retry}
}

func (r *Router) providerByName(name string) (Provider, error) {
	switch name {
	case "ollama":
		return r.ollama, nil
	case "openrouter":
		return r.openrouter, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
}

func otherProvider(name string) string {
	if name == "ollama" {
		return "openrouter"
	}
	return "ollama"
}

// attemptOrder returns the provider names to try, in order. A prompt
// literally containing "/fallback" forces the fallback provider and skips
// primary entirely, per spec §4.8.
func attemptOrder(primary, prompt string) []string {
	if strings.Contains(prompt, forceFallbackMarker) {
		return []string{otherProvider(primary)}
	}
	return []string{primary, otherProvider(primary)}
}

// ChatWithFallback sends prompt as a single user turn to primary, falling
// back to the other provider on failure (or being forced to it by the
// literal "/fallback" marker). Returns which provider actually served the
// reply.
func (r *Router) ChatWithFallback(ctx context.Context, primary, prompt string) (providerUsed string, reply string, err error) {
	req := ChatRequest{Messages: []Message{{Role: "user", Content: prompt}}}
	resp, err := r.dispatch(ctx, primary, prompt, req, nil)
	if err != nil {
		return "", "", err
	}
	return resp.Provider, resp.Content, nil
}

// ChatStreamWithFallback is ChatWithFallback's streaming counterpart: partial
// chunks are pushed into sink as they arrive.
func (r *Router) ChatStreamWithFallback(ctx context.Context, primary, prompt string, sink TokenSink) (providerUsed string, reply string, err error) {
	req := ChatRequest{Messages: []Message{{Role: "user", Content: prompt}}}
	resp, err := r.dispatchStream(ctx, primary, prompt, req, sink)
	if err != nil {
		return "", "", err
	}
	return resp.Provider, resp.Content, nil
}

// embedder is satisfied structurally by both adapters (via the shared
// openaiCompatClient.Embed), kept unexported since only the router needs it.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embed computes a dense embedding for text using primary's provider,
// falling back to the other provider if primary can't embed or errors.
func (r *Router) Embed(ctx context.Context, primary, text string) ([]float32, error) {
	var lastErr error
	for _, name := range []string{primary, otherProvider(primary)} {
		provider, err := r.providerByName(name)
		if err != nil {
			lastErr = err
			continue
		}
		e, ok := provider.(embedder)
		if !ok {
			lastErr = fmt.Errorf("llm: %s: provider does not support embeddings", name)
			continue
		}
		vec, err := e.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("llm: embedding failed on all providers: %w", lastErr)
}

// ChatMessagesStream is the OpenAI-compatible structured form: req carries a
// full message history and tool set, and the full ChatResponse (including
// tool calls) is returned.
func (r *Router) ChatMessagesStream(ctx context.Context, primary string, req ChatRequest, sink TokenSink) (*ChatResponse, error) {
	lastUser := lastUserContent(req.Messages)
	return r.dispatchStream(ctx, primary, lastUser, req, sink)
}

func lastUserContent(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func (r *Router) dispatch(ctx context.Context, primary, promptForFallbackCheck string, req ChatRequest, sink TokenSink) (*ChatResponse, error) {
	var lastErr error
	for _, name := range attemptOrder(primary, promptForFallbackCheck) {
		provider, err := r.providerByName(name)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := r.callWithRetry(ctx, provider, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("llm: all providers failed: %w", lastErr)
}

func (r *Router) dispatchStream(ctx context.Context, primary, promptForFallbackCheck string, req ChatRequest, sink TokenSink) (*ChatResponse, error) {
	var lastErr error
	for _, name := range attemptOrder(primary, promptForFallbackCheck) {
		provider, err := r.providerByName(name)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := r.callStreamWithRetry(ctx, provider, req, sink)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("llm: all providers failed: %w", lastErr)
}

func (r *Router) callWithRetry(ctx context.Context, p Provider, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			resp.Provider = p.Name()
			return resp, nil
		}
		lastErr = err
		if attempt < r.retry.MaxRetries {
			if waitErr := r.sleepBackoff(ctx, attempt); waitErr != nil {
				return nil, waitErr
			}
		}
	}
	return nil, fmt.Errorf("llm: %s: %w", p.Name(), lastErr)
}

func (r *Router) callStreamWithRetry(ctx context.Context, p Provider, req ChatRequest, sink TokenSink) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		resp, err := p.ChatStream(ctx, req, sink)
		if err == nil {
			resp.Provider = p.Name()
			return resp, nil
		}
		lastErr = err
		if attempt < r.retry.MaxRetries {
			if waitErr := r.sleepBackoff(ctx, attempt); waitErr != nil {
				return nil, waitErr
			}
		}
	}
	return nil, fmt.Errorf("llm: %s: %w", p.Name(), lastErr)
}

func (r *Router) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if r.retry.MaxBackoff > 0 && backoff > r.retry.MaxBackoff {
		backoff = r.retry.MaxBackoff
	}
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractJSONOutput implements extract_json_output: a fenced ```json``` block
// wins if present, otherwise the first balanced {...} substring is tried.
func ExtractJSONOutput(raw string, out interface{}) bool {
	if m := fencedJSONBlock.FindStringSubmatch(raw); m != nil {
		if json.Unmarshal([]byte(m[1]), out) == nil {
			return true
		}
	}
	if body, ok := firstBalancedObject(raw); ok {
		if json.Unmarshal([]byte(body), out) == nil {
			return true
		}
	}
	return false
}

// firstBalancedObject scans for the first brace-balanced {...} substring,
// respecting quoted strings so braces inside string literals don't confuse
// the depth count.
func firstBalancedObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
