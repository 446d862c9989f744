// Package runtime implements C13: the per-turn orchestrator that ties the
// memory manager (C1-C9), the LLM router (C10), the tool executor (C11) and
// the prompt builder (C12) together, grounded on
// original_source/crates/runtime/src/runtime.rs and its runtime/*.rs
// submodules (chat.rs, reflection.rs, tools.rs).
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aigent/internal/config"
	"aigent/internal/llm"
	"aigent/internal/memtier"
	"aigent/internal/prompt"
	"aigent/internal/tools"
)

// ConversationTurn is one recorded user/assistant exchange kept in the
// bounded recent-turns deque (spec §5).
type ConversationTurn struct {
	User      string
	Assistant string
}

// Runtime is the per-turn orchestrator (C13).
type Runtime struct {
	Config   *config.Config
	router   *llm.Router
	registry *tools.Registry
}

// New builds a Runtime over an already-configured LLM router and tool
// registry.
func New(cfg *config.Config, router *llm.Router, registry *tools.Registry) *Runtime {
	return &Runtime{Config: cfg, router: router, registry: registry}
}

func (rt *Runtime) primary() string { return rt.Config.PrimaryProvider() }

// TestModelConnection performs a minimal healthcheck round-trip against the
// configured primary provider.
func (rt *Runtime) TestModelConnection(ctx context.Context) (string, error) {
	p := fmt.Sprintf("[healthcheck][bot-name:%s][thinking:%s] Reply with a short single-line confirmation.",
		rt.Config.Agent.Name, rt.Config.Agent.ThinkingLevel)

	providerUsed, reply, err := rt.router.ChatWithFallback(ctx, rt.primary(), p)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("provider=%s model=%s reply=%s", providerUsed, rt.Config.ActiveModel(), reply), nil
}

// RespondAndRemember runs the per-turn flow of spec §4.11 steps 1-8:
// persist the user turn, extract inline profile signals, conditionally
// collect pending follow-ups, decide and execute at most one tool call,
// rank memory context, build the prompt, stream the LLM reply, persist a
// truncated assistant reply, and consume delivered follow-ups. The second
// return value carries any ToolCallStart/ToolCallEnd events for the caller
// to forward to the client, the same convention InlineReflect uses.
func (rt *Runtime) RespondAndRemember(
	ctx context.Context,
	mem *memtier.Manager,
	userMessage string,
	recentTurns []ConversationTurn,
	lastTurnAt time.Time,
	toolSpecs []tools.ToolSpec,
	sink llm.TokenSink,
) (string, []BackendEvent, error) {
	if _, err := mem.Record(memtier.Episodic, userMessage, "user-input"); err != nil {
		return "", nil, fmt.Errorf("runtime: persisting user turn: %w", err)
	}

	for _, sig := range extractInlineProfileSignals(userMessage) {
		if _, err := mem.RecordUserProfileKeyed(sig.Key, sig.Value, sig.Category); err != nil {
			slog.Warn("micro-profile signal failed", "key", sig.Key, "err", err)
		}
	}

	isReturningAfterAbsence := !lastTurnAt.IsZero() && time.Since(lastTurnAt) >= 4*time.Hour
	var pendingFollowUps []memtier.PendingFollowUp
	if len(recentTurns) == 0 || isReturningAfterAbsence {
		pendingFollowUps = mem.PendingFollowUpIDs()
	}

	toolResult, events := rt.maybeExecuteTool(ctx, userMessage, toolSpecs)

	queryEmbedding, _ := mem.Embed(userMessage)
	context := mem.ContextForPromptRankedWithEmbed(userMessage, 10, queryEmbedding)
	stats := mem.Stats()

	convTurns := make([]prompt.ConversationTurn, len(recentTurns))
	for i, t := range recentTurns {
		convTurns[i] = prompt.ConversationTurn{User: t.User, Assistant: t.Assistant}
	}

	promptText := prompt.Build(prompt.Inputs{
		Config:           rt.Config,
		Memory:           mem,
		UserMessage:      userMessage,
		RecentTurns:      convTurns,
		ToolSpecs:        toolSpecs,
		PendingFollowUps: pendingFollowUps,
		ContextItems:     context,
		Stats:            stats,
		Provider:         rt.Config.LLM.Provider,
		Model:            rt.Config.ActiveModel(),
		ToolResult:       toolResult,
	})

	_, reply, err := rt.router.ChatStreamWithFallback(ctx, rt.primary(), promptText, sink)
	if err != nil {
		return "", events, fmt.Errorf("runtime: llm call failed: %w", err)
	}

	truncated := prompt.TruncateForPrompt(reply, 1023) // ≤1024 runes including the "…"
	if _, err := mem.Record(memtier.Episodic, truncated, "assistant-reply:"+rt.Config.ActiveModel()); err != nil {
		slog.Warn("failed to persist assistant reply", "err", err)
	}

	if len(pendingFollowUps) > 0 {
		ids := make([]uuid.UUID, len(pendingFollowUps))
		for i, f := range pendingFollowUps {
			ids[i] = f.ID
		}
		mem.ConsumeFollowUps(ids)
	}

	return reply, events, nil
}

// maybeExecuteTool asks MaybeToolCall whether the turn needs a tool, runs it
// through the registry (capability gates, policy, approval, sandbox all
// apply exactly as they do for an explicit ExecuteTool call), and returns
// its output formatted for the prompt's TOOL RESULT section plus the
// lifecycle events the IPC layer forwards to the client.
func (rt *Runtime) maybeExecuteTool(ctx context.Context, userMessage string, toolSpecs []tools.ToolSpec) (string, []BackendEvent) {
	decision := rt.MaybeToolCall(ctx, userMessage, toolSpecs)
	if decision == nil {
		return "", nil
	}

	callID := uuid.NewString()
	events := []BackendEvent{EventToolCallStart(decision.Tool, callID)}
	out, err := rt.registry.Run(ctx, decision.Tool, decision.StringifyArgs())
	events = append(events, EventToolCallEnd(decision.Tool, callID))

	if err != nil {
		slog.Warn("tool call failed during turn", "tool", decision.Tool, "err", err)
		return fmt.Sprintf("[%s] error: %v", decision.Tool, err), events
	}
	return fmt.Sprintf("[%s]\n%s", decision.Tool, out.Output), events
}
