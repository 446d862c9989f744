package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeProvider lets router tests control success/failure without real HTTP.
type fakeProvider struct {
	name    string
	fail    bool
	calls   int
	content string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("simulated failure")
	}
	return &ChatResponse{Content: f.content, Provider: f.name}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req ChatRequest, sink TokenSink) (*ChatResponse, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("simulated failure")
	}
	if sink != nil {
		sink(f.content)
	}
	return &ChatResponse{Content: f.content, Provider: f.name}, nil
}

func testRouter(ollamaFail, openrouterFail bool) (*Router, *fakeProvider, *fakeProvider) {
	ollama := &fakeProvider{name: "ollama", fail: ollamaFail, content: "from ollama"}
	openrouter := &fakeProvider{name: "openrouter", fail: openrouterFail, content: "from openrouter"}
	r := NewRouter(ollama, openrouter, RetryConfig{MaxRetries: 0})
	return r, ollama, openrouter
}

func TestChatWithFallbackUsesPrimaryWhenHealthy(t *testing.T) {
	r, _, _ := testRouter(false, false)
	provider, reply, err := r.ChatWithFallback(context.Background(), "ollama", "hello")
	if err != nil {
		t.Fatalf("chat with fallback: %v", err)
	}
	if provider != "ollama" || reply != "from ollama" {
		t.Errorf("expected ollama/from ollama, got %s/%s", provider, reply)
	}
}

func TestChatWithFallbackFallsBackOnPrimaryFailure(t *testing.T) {
	r, ollama, openrouter := testRouter(true, false)
	provider, reply, err := r.ChatWithFallback(context.Background(), "ollama", "hello")
	if err != nil {
		t.Fatalf("chat with fallback: %v", err)
	}
	if provider != "openrouter" || reply != "from openrouter" {
		t.Errorf("expected openrouter/from openrouter, got %s/%s", provider, reply)
	}
	if ollama.calls != 1 || openrouter.calls != 1 {
		t.Errorf("expected both providers tried once, got ollama=%d openrouter=%d", ollama.calls, openrouter.calls)
	}
}

func TestChatWithFallbackForcedByLiteralMarker(t *testing.T) {
	r, ollama, openrouter := testRouter(false, false)
	provider, _, err := r.ChatWithFallback(context.Background(), "ollama", "please use /fallback now")
	if err != nil {
		t.Fatalf("chat with fallback: %v", err)
	}
	if provider != "openrouter" {
		t.Errorf("expected /fallback marker to force openrouter, got %s", provider)
	}
	if ollama.calls != 0 {
		t.Errorf("expected primary never called when /fallback forced, got %d calls", ollama.calls)
	}
	if openrouter.calls != 1 {
		t.Errorf("expected fallback called once, got %d", openrouter.calls)
	}
}

func TestChatWithFallbackBothFail(t *testing.T) {
	r, _, _ := testRouter(true, true)
	if _, _, err := r.ChatWithFallback(context.Background(), "ollama", "hello"); err == nil {
		t.Fatal("expected error when both providers fail")
	}
}

func TestChatStreamWithFallbackStreamsFromWinningProvider(t *testing.T) {
	r, _, _ := testRouter(true, false)
	var got string
	provider, reply, err := r.ChatStreamWithFallback(context.Background(), "ollama", "hi", func(chunk string) {
		got += chunk
	})
	if err != nil {
		t.Fatalf("chat stream with fallback: %v", err)
	}
	if provider != "openrouter" || reply != "from openrouter" || got != "from openrouter" {
		t.Errorf("unexpected result: provider=%s reply=%s streamed=%s", provider, reply, got)
	}
}

func TestCallWithRetryBacksOffBetweenAttempts(t *testing.T) {
	ollama := &fakeProvider{name: "ollama", fail: true}
	openrouter := &fakeProvider{name: "openrouter", fail: true}
	r := NewRouter(ollama, openrouter, RetryConfig{MaxRetries: 2, MaxBackoff: 5 * time.Millisecond})
	start := time.Now()
	if _, err := r.callWithRetry(context.Background(), ollama, ChatRequest{}); err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if ollama.calls != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", ollama.calls)
	}
	if time.Since(start) < 2*time.Millisecond {
		t.Error("expected some backoff delay between retries")
	}
}

func TestExtractJSONOutputPrefersFencedBlock(t *testing.T) {
	raw := "some preamble\n```json\n{\"a\":1}\n```\nand then {\"a\":2} trailing"
	var out struct{ A int }
	if !ExtractJSONOutput(raw, &out) {
		t.Fatal("expected extraction to succeed")
	}
	if out.A != 1 {
		t.Errorf("expected fenced block to win with a=1, got %d", out.A)
	}
}

func TestExtractJSONOutputFallsBackToBalancedBraces(t *testing.T) {
	raw := `the model said: {"a": 3, "nested": {"b": 4}} done`
	var out struct {
		A      int
		Nested struct{ B int }
	}
	if !ExtractJSONOutput(raw, &out) {
		t.Fatal("expected extraction to succeed")
	}
	if out.A != 3 || out.Nested.B != 4 {
		t.Errorf("unexpected extraction result: %+v", out)
	}
}

func TestExtractJSONOutputNoJSONPresent(t *testing.T) {
	var out struct{ A int }
	if ExtractJSONOutput("no json here at all", &out) {
		t.Fatal("expected extraction to fail when no JSON present")
	}
}
