package sleep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"aigent/internal/llm"
	"aigent/internal/memtier"
)

// llmCaller is the narrow slice of llm.Router this package needs, so tests
// can supply a fake without constructing a full router.
type llmCaller interface {
	ChatWithFallback(ctx context.Context, primary, prompt string) (string, string, error)
}

// Generate asks the LLM to produce one agentic sleep pass over the full
// memory snapshot and identity kernel, grounded on
// original_source/crates/runtime/src/runtime/sleep.rs's
// generate_agentic_sleep_insights. Returns (Insights{}, false) if the LLM call
// fails or its reply can't be parsed — the caller should fall back to
// memtier.Manager.RunSleepCycle alone (Rust's SleepGenerationResult::
// PassiveFallback).
func Generate(ctx context.Context, router llmCaller, primary string, mem *memtier.Manager, botName, userName string) (Insights, bool) {
	prompt := buildInsightPrompt(mem, botName, userName, "")
	return generateFromPrompt(ctx, router, primary, prompt)
}

func generateFromPrompt(ctx context.Context, router llmCaller, primary, prompt string) (Insights, bool) {
	_, raw, err := router.ChatWithFallback(ctx, primary, prompt)
	if err != nil {
		slog.Debug("sleep: llm unavailable", "err", err)
		return Insights{}, false
	}
	var out Insights
	if !llm.ExtractJSONOutput(raw, &out) {
		slog.Debug("sleep: unparsable insights reply")
		return Insights{}, false
	}
	return out, true
}

// buildInsightPrompt renders the memory snapshot, identity kernel and an
// optional role preamble (used by the multi-agent specialists; empty for
// the single-agent pass) into one sleep-generation prompt.
func buildInsightPrompt(mem *memtier.Manager, botName, userName, rolePreamble string) string {
	k := mem.Kernel().Snapshot()

	var b strings.Builder
	if rolePreamble != "" {
		b.WriteString(rolePreamble)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "You are %s's sleep engine, consolidating memory about your user %s while they are away.\n", botName, userName)
	b.WriteString("Review the memory snapshot below and extract durable insights.\n\n")

	fmt.Fprintf(&b, "IDENTITY VALUES: %s\n", strings.Join(k.Values, ", "))
	fmt.Fprintf(&b, "COMMUNICATION STYLE: %s\n", k.CommunicationStyle)
	fmt.Fprintf(&b, "LONG-TERM GOALS: %s\n\n", strings.Join(k.LongGoals, ", "))

	for _, tier := range memtier.AllTiers {
		entries := mem.EntriesByTier(tier)
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "== %s (%d entries) ==\n", tier.String(), len(entries))
		for _, e := range entries {
			fmt.Fprintf(&b, "- [%s] %s\n", shortID(e.ID.String()), e.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString(insightJSONInstructions)
	return b.String()
}

const insightJSONInstructions = `Respond ONLY with JSON matching this shape (omit or empty-array any field with nothing to report):
{
  "learned_about_user": ["..."],
  "follow_ups": ["..."],
  "reflective_thoughts": ["..."],
  "relationship_milestones": ["..."],
  "perspectives": [{"topic":"...","view":"..."}],
  "contradictions": ["..."],
  "tool_insights": ["..."],
  "synthesis": "...",
  "user_profile_updates": [{"key":"...","value":"..."}],
  "retire_core_ids": ["id-prefix", ...],
  "rewrite_core": [{"id_prefix":"...","new_content":"..."}],
  "consolidate_core": [{"id_prefixes":"idprefix1,idprefix2","synthesis":"..."}],
  "llm_promotions": [{"id_prefix":"...","tier":"semantic"}],
  "free_memories": [{"tier":"reflective","content":"...","tags":"tag1,tag2"}]
}
Only name Core entries for retire_core_ids/rewrite_core/consolidate_core when you have strong evidence they are stale or wrong; Core is the most durable tier and should change rarely.
JSON RESPONSE:`

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
