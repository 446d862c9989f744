package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aigent/internal/config"
	"aigent/internal/llm"
	"aigent/internal/memtier"
	"aigent/internal/tools"
)

// fakeProvider is a minimal llm.Provider double, mirroring llm/router_test.go's.
type fakeProvider struct {
	name      string
	fail      bool
	content   string
	toolCalls []llm.ToolCallResponse
	script    []*fakeProvider
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.fail {
		return nil, errors.New("simulated failure")
	}
	return &llm.ChatResponse{Content: f.content, ToolCalls: f.toolCalls, Provider: f.name}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req llm.ChatRequest, sink llm.TokenSink) (*llm.ChatResponse, error) {
	if f.fail {
		return nil, errors.New("simulated failure")
	}
	if sink != nil {
		sink(f.content)
	}
	return &llm.ChatResponse{Content: f.content, ToolCalls: f.toolCalls, Provider: f.name}, nil
}

func testManager(t *testing.T) *memtier.Manager {
	t.Helper()
	log := memtier.NewEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	return memtier.NewManager(log)
}

func testRuntime(t *testing.T, ollamaReply string) (*Runtime, *fakeProvider) {
	t.Helper()
	cfg := config.New()
	cfg.Agent.Name = "Aigent"
	cfg.LLM.Provider = "ollama"

	ollama := &fakeProvider{name: "ollama", content: ollamaReply}
	openrouter := &fakeProvider{name: "openrouter", content: ollamaReply}
	router := llm.NewRouter(ollama, openrouter, llm.RetryConfig{MaxRetries: 0})

	policy := tools.NewPolicy(cfg)
	registry := tools.NewRegistry(policy, tools.NewApprovalGate(nil, 0))

	return New(cfg, router, registry), ollama
}

func TestRespondAndRememberPersistsUserAndAssistantTurns(t *testing.T) {
	rt, _ := testRuntime(t, "hello back")
	mem := testManager(t)

	reply, _, err := rt.RespondAndRemember(context.Background(), mem, "hello there", nil, time.Time{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "hello back" {
		t.Fatalf("expected reply %q, got %q", "hello back", reply)
	}

	episodic := mem.EntriesByTier(memtier.Episodic)
	if len(episodic) != 2 {
		t.Fatalf("expected 2 episodic entries (user+assistant), got %d", len(episodic))
	}
	if episodic[0].Content != "hello there" || episodic[0].Source != "user-input" {
		t.Errorf("unexpected first entry: %+v", episodic[0])
	}
	if episodic[1].Source != "assistant-reply:"+rt.Config.ActiveModel() {
		t.Errorf("unexpected assistant source: %s", episodic[1].Source)
	}
}

func TestRespondAndRememberExtractsMicroProfileSignals(t *testing.T) {
	rt, _ := testRuntime(t, "noted")
	mem := testManager(t)

	_, _, err := rt.RespondAndRemember(context.Background(), mem, "my name is Priya.", nil, time.Time{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	name, ok := mem.UserNameFromCore()
	if !ok || name != "Priya" {
		t.Errorf("expected user name Priya recorded from core, got %q ok=%v", name, ok)
	}
}

func TestRespondAndRememberTruncatesLongReplyForEpisodicStorage(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	rt, _ := testRuntime(t, string(long))
	mem := testManager(t)

	reply, _, err := rt.RespondAndRemember(context.Background(), mem, "say a lot", nil, time.Time{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply) != 2000 {
		t.Fatalf("expected caller-facing reply untruncated, got len %d", len(reply))
	}

	episodic := mem.EntriesByTier(memtier.Episodic)
	assistantEntry := episodic[len(episodic)-1]
	if len([]rune(assistantEntry.Content)) > 1024 {
		t.Errorf("expected persisted reply capped at 1024 runes, got %d", len([]rune(assistantEntry.Content)))
	}
}

func TestTestModelConnectionReportsProviderAndModel(t *testing.T) {
	rt, _ := testRuntime(t, "ok")
	out, err := rt.TestModelConnection(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "provider=ollama") || !strings.Contains(out, "reply=ok") {
		t.Errorf("unexpected healthcheck output: %s", out)
	}
}

func TestMaybeToolCallReturnsNilWhenNoToolsOffered(t *testing.T) {
	rt, _ := testRuntime(t, `{"no_action":true}`)
	if call := rt.MaybeToolCall(context.Background(), "what's the weather?", nil); call != nil {
		t.Errorf("expected nil with no tool specs, got %+v", call)
	}
}

func TestMaybeToolCallParsesToolDecision(t *testing.T) {
	rt, _ := testRuntime(t, `{"tool":"web_search","args":{"query":"weather today"}}`)
	specs := []tools.ToolSpec{{Name: "web_search", Description: "search the web"}}

	call := rt.MaybeToolCall(context.Background(), "what's the weather?", specs)
	if call == nil {
		t.Fatal("expected a tool call")
	}
	if call.Tool != "web_search" {
		t.Errorf("expected tool web_search, got %s", call.Tool)
	}
	if call.StringifyArgs()["query"] != "weather today" {
		t.Errorf("unexpected args: %+v", call.Args)
	}
}

func TestMaybeToolCallReturnsNilOnNoAction(t *testing.T) {
	rt, _ := testRuntime(t, `{"no_action":true}`)
	specs := []tools.ToolSpec{{Name: "web_search", Description: "search the web"}}

	if call := rt.MaybeToolCall(context.Background(), "hi there", specs); call != nil {
		t.Errorf("expected nil, got %+v", call)
	}
}

func TestRunToolLoopReturnsImmediatelyWithNoToolCalls(t *testing.T) {
	rt, _ := testRuntime(t, "just a plain answer")
	result, err := rt.RunToolLoop(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "just a plain answer" {
		t.Errorf("expected passthrough content, got %q", result.Content)
	}
	if len(result.Events) != 0 {
		t.Errorf("expected no tool events, got %v", result.Events)
	}
}

// loopProvider simulates a model that always requests the same tool call
// until tools are omitted from the request (the loop's final round), at
// which point it must answer with plain content.
type loopProvider struct {
	name         string
	toolCallName string
}

func (p *loopProvider) Name() string { return p.name }

func (p *loopProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return p.respond(req), nil
}

func (p *loopProvider) ChatStream(ctx context.Context, req llm.ChatRequest, sink llm.TokenSink) (*llm.ChatResponse, error) {
	return p.respond(req), nil
}

func (p *loopProvider) respond(req llm.ChatRequest) *llm.ChatResponse {
	if len(req.Tools) == 0 {
		return &llm.ChatResponse{Content: "final answer after tools", Provider: p.name}
	}
	return &llm.ChatResponse{
		ToolCalls: []llm.ToolCallResponse{{ID: "call-1", Name: p.toolCallName, Args: map[string]interface{}{"query": "x"}}},
		Provider:  p.name,
	}
}

func TestRunToolLoopForcesTextualAnswerOnLastRound(t *testing.T) {
	cfg := config.New()
	provider := &loopProvider{name: "ollama", toolCallName: "web_search"}
	router := llm.NewRouter(provider, provider, llm.RetryConfig{MaxRetries: 0})
	policy := tools.NewPolicy(cfg)
	registry := tools.NewRegistry(policy, tools.NewApprovalGate(nil, 0))
	rt := New(cfg, router, registry)

	specs := []tools.ToolSpec{{Name: "web_search", Description: "search the web"}}
	result, err := rt.RunToolLoop(context.Background(), []llm.Message{{Role: "user", Content: "search something"}}, specs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "final answer after tools" {
		t.Errorf("expected forced textual answer, got %q", result.Content)
	}
}

// twoPhaseProvider simulates a model whose single-shot Chat response (used
// by MaybeToolCall) differs from its streamed ChatStream response (used by
// the turn's final reply), so a test can assert the tool decision and the
// final answer independently.
type twoPhaseProvider struct {
	name       string
	decision   string
	finalReply string
}

func (p *twoPhaseProvider) Name() string { return p.name }

func (p *twoPhaseProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: p.decision, Provider: p.name}, nil
}

func (p *twoPhaseProvider) ChatStream(ctx context.Context, req llm.ChatRequest, sink llm.TokenSink) (*llm.ChatResponse, error) {
	if sink != nil {
		sink(p.finalReply)
	}
	return &llm.ChatResponse{Content: p.finalReply, Provider: p.name}, nil
}

func TestRespondAndRememberExecutesDecidedToolAndEmitsEvents(t *testing.T) {
	cfg := config.New()
	cfg.Agent.Name = "Aigent"
	cfg.LLM.Provider = "ollama"
	provider := &twoPhaseProvider{
		name:       "ollama",
		decision:   `{"tool":"web_search","args":{"query":"weather today"}}`,
		finalReply: "done",
	}
	router := llm.NewRouter(provider, provider, llm.RetryConfig{MaxRetries: 0})
	policy := tools.NewPolicy(cfg)
	registry := tools.NewRegistry(policy, tools.NewApprovalGate(nil, 0))
	rt := New(cfg, router, registry)
	mem := testManager(t)

	specs := []tools.ToolSpec{{Name: "web_search", Description: "search the web"}}
	reply, events, err := rt.RespondAndRemember(context.Background(), mem, "what's the weather?", nil, time.Time{}, specs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "done" {
		t.Errorf("expected final streamed reply %q, got %q", "done", reply)
	}
	if len(events) != 2 || events[0].Type != "ToolCallStart" || events[1].Type != "ToolCallEnd" {
		t.Fatalf("expected ToolCallStart/ToolCallEnd events, got %+v", events)
	}
	if events[0].Tool != "web_search" || events[1].Tool != "web_search" {
		t.Errorf("expected events tagged web_search, got %+v", events)
	}
	if events[0].ToolCallID == "" || events[0].ToolCallID != events[1].ToolCallID {
		t.Errorf("expected matching non-empty tool call IDs, got %+v", events)
	}
}

func TestRespondAndRememberSkipsToolExecutionWithNoToolSpecs(t *testing.T) {
	rt, _ := testRuntime(t, "plain reply")
	mem := testManager(t)

	_, events, err := rt.RespondAndRemember(context.Background(), mem, "hello", nil, time.Time{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no tool events without tool specs, got %+v", events)
	}
}

func TestInlineReflectPersistsBeliefsAndReflections(t *testing.T) {
	rt, _ := testRuntime(t, `{"beliefs":[{"claim":"user prefers dark mode","confidence":0.8}],"reflections":["user seems focused on UI polish"]}`)
	mem := testManager(t)

	events := rt.InlineReflect(context.Background(), mem, "I really like dark mode everywhere", "Got it, I'll keep that in mind")
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}

	beliefs := mem.AllBeliefs()
	if len(beliefs) != 1 || beliefs[0].Content != "user prefers dark mode" {
		t.Errorf("unexpected beliefs: %+v", beliefs)
	}

	reflective := mem.EntriesByTier(memtier.Reflective)
	found := false
	for _, e := range reflective {
		if e.Content == "user seems focused on UI polish" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected reflection entry recorded, got %+v", reflective)
	}
}

func TestInlineReflectReturnsNilOnUnparsableResponse(t *testing.T) {
	rt, _ := testRuntime(t, "not json at all")
	mem := testManager(t)

	if events := rt.InlineReflect(context.Background(), mem, "hi", "hello"); events != nil {
		t.Errorf("expected nil events, got %+v", events)
	}
}

func TestRunProactiveCheckReturnsNilWhenNoAction(t *testing.T) {
	rt, _ := testRuntime(t, `{"action":"no_action"}`)
	mem := testManager(t)

	if out := rt.RunProactiveCheck(context.Background(), mem); out != nil {
		t.Errorf("expected nil, got %+v", out)
	}
}

func TestRunProactiveCheckReturnsMessageWhenWarranted(t *testing.T) {
	rt, _ := testRuntime(t, `{"action":"message","message":"You asked me to check back on your visa renewal.","urgency":0.7}`)
	mem := testManager(t)

	out := rt.RunProactiveCheck(context.Background(), mem)
	if out == nil {
		t.Fatal("expected a proactive message")
	}
	if out.Message == "" || out.Urgency != 0.7 {
		t.Errorf("unexpected proactive output: %+v", out)
	}
}
