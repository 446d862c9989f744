package sleep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"aigent/internal/memtier"
)

// tracer emits one span per batch and one per specialist sub-agent, so a
// connected collector can show how a multi-agent sleep cycle's wall-clock
// time splits across its four parallel lenses.
var tracer = otel.Tracer("aigent/sleep")

// specialist is one of the four fixed lenses the multi-agent sleep mode
// runs in parallel over each batch, grounded on
// original_source/crates/runtime/src/runtime/sleep.rs's SpecialistRole and
// specialist_prompt.
type specialist struct {
	role     string
	preamble string
}

var specialists = []specialist{
	{
		role:     "Archivist",
		preamble: "You are the Archivist: focus on facts, history, and what should be preserved or corrected in Core/UserProfile memory.",
	},
	{
		role:     "Psychologist",
		preamble: "You are the Psychologist: focus on the user's emotional state, motivations, and the relationship dynamic between you and them.",
	},
	{
		role:     "Strategist",
		preamble: "You are the Strategist: focus on the user's goals, open follow-ups, and what they'll need help with next.",
	},
	{
		role:     "Critic",
		preamble: "You are the Critic: focus on contradictions, stale beliefs, and mistakes worth flagging or retiring.",
	},
}

// GenerateMultiAgent runs the full multi-agent sleep pipeline: partition
// the memory snapshot into batches, run the four specialists over each
// batch in parallel, detect conflicting Core-id instructions across
// specialists, synthesize one canonical Insights per batch via a
// deliberation call, then merge every batch's insights. Falls back to
// single-agent generation per-batch on specialist failure, and to a fully
// unbatched single-agent pass if every batch fails. Grounded on
// original_source/crates/runtime/src/runtime/sleep.rs's
// generate_multi_agent_sleep_insights.
func GenerateMultiAgent(ctx context.Context, router llmCaller, primary string, mem *memtier.Manager, botName, userName string, batchSize int) Insights {
	ctx, span := tracer.Start(ctx, "sleep.multiagent")
	defer span.End()

	batches := batchEntries(mem.All(), batchSize)
	span.SetAttributes(attribute.Int("sleep.batch_count", len(batches)))

	var merged Insights
	anySucceeded := false

	for i, batch := range batches {
		insights, ok := generateBatch(ctx, router, primary, mem, batch, botName, userName, i)
		if !ok {
			continue
		}
		anySucceeded = true
		merged.merge(insights)
	}

	if !anySucceeded {
		slog.Warn("sleep: every multi-agent batch failed, falling back to single-agent pass")
		single, ok := Generate(ctx, router, primary, mem, botName, userName)
		if ok {
			return single
		}
		return Insights{}
	}
	return merged
}

// batchEntries partitions entries into groups of size batchSize, with
// every Core and UserProfile entry replicated into every batch (they are
// small, durable, and every specialist needs identity context to reason
// about the rest).
func batchEntries(entries []memtier.Entry, batchSize int) [][]memtier.Entry {
	if batchSize <= 0 {
		batchSize = 20
	}

	var identity, rest []memtier.Entry
	for _, e := range entries {
		if e.Tier == memtier.Core || e.Tier == memtier.UserProfile {
			identity = append(identity, e)
		} else {
			rest = append(rest, e)
		}
	}

	if len(rest) == 0 {
		return [][]memtier.Entry{identity}
	}

	var batches [][]memtier.Entry
	for i := 0; i < len(rest); i += batchSize {
		end := i + batchSize
		if end > len(rest) {
			end = len(rest)
		}
		batch := append(append([]memtier.Entry{}, identity...), rest[i:end]...)
		batches = append(batches, batch)
	}
	return batches
}

// generateBatch runs the four specialists over one batch in parallel, then
// either deliberates a synthesis from all four or, if any specialist
// failed, falls back to a single-agent pass over the same batch.
func generateBatch(ctx context.Context, router llmCaller, primary string, mem *memtier.Manager, batch []memtier.Entry, botName, userName string, batchIndex int) (Insights, bool) {
	ctx, span := tracer.Start(ctx, "sleep.batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("sleep.batch_index", batchIndex),
		attribute.Int("sleep.batch_entries", len(batch)),
	)

	results := make([]Insights, len(specialists))
	oks := make([]bool, len(specialists))

	var wg sync.WaitGroup
	for i, sp := range specialists {
		wg.Add(1)
		go func(i int, sp specialist) {
			defer wg.Done()
			spanCtx, specialistSpan := tracer.Start(ctx, "subagent."+sp.role)
			specialistSpan.SetAttributes(
				attribute.String("subagent.role", sp.role),
				attribute.String("subagent.model", primary),
			)
			prompt := buildBatchPrompt(mem, batch, botName, userName, sp.preamble)
			insights, ok := generateFromPrompt(spanCtx, router, primary, prompt)
			if !ok {
				specialistSpan.RecordError(fmt.Errorf("subagent %s: generation call failed", sp.role))
			}
			specialistSpan.End()
			results[i] = insights
			oks[i] = ok
		}(i, sp)
	}
	wg.Wait()

	for _, ok := range oks {
		if !ok {
			slog.Warn("sleep: a specialist failed, falling back to single-agent pass for this batch")
			return singleAgentOverBatch(ctx, router, primary, mem, batch, botName, userName)
		}
	}

	conflicts := conflictingCoreIDs(results)
	synthesis, ok := deliberate(ctx, router, primary, results, conflicts, botName, userName)
	if !ok {
		slog.Warn("sleep: deliberation call failed, merging specialist reports directly")
		var merged Insights
		for _, r := range results {
			merged.merge(r)
		}
		return merged, true
	}
	return synthesis, true
}

func singleAgentOverBatch(ctx context.Context, router llmCaller, primary string, mem *memtier.Manager, batch []memtier.Entry, botName, userName string) (Insights, bool) {
	prompt := buildBatchPrompt(mem, batch, botName, userName, "")
	return generateFromPrompt(ctx, router, primary, prompt)
}

// conflictingCoreIDs returns every short id prefix that one specialist
// named in retire_core_ids while another named it in rewrite_core or
// consolidate_core, ids whose fate the specialists disagree on.
func conflictingCoreIDs(results []Insights) []string {
	retiring := make(map[string]bool)
	rewriting := make(map[string]bool)
	for _, r := range results {
		for _, id := range r.RetireCoreIDs {
			retiring[strings.TrimSpace(id)] = true
		}
		for _, rw := range r.RewriteCore {
			rewriting[strings.TrimSpace(rw.IDPrefix)] = true
		}
		for _, c := range r.ConsolidateCore {
			for _, id := range splitAndTrim(c.IDPrefixes) {
				rewriting[id] = true
			}
		}
	}
	var conflicts []string
	for id := range retiring {
		if rewriting[id] {
			conflicts = append(conflicts, id)
		}
	}
	return conflicts
}

func deliberate(ctx context.Context, router llmCaller, primary string, results []Insights, conflicts []string, botName, userName string) (Insights, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s's sleep engine, reconciling four specialist memory reports about your user %s into one canonical set of insights.\n\n", botName, userName)
	for i, r := range results {
		fmt.Fprintf(&b, "== %s report ==\n", specialists[i].role)
		fmt.Fprintf(&b, "%+v\n\n", r)
	}
	if len(conflicts) > 0 {
		fmt.Fprintf(&b, "CONFLICTING CORE IDS (specialists disagree whether to retire or rewrite): %s\n\n", strings.Join(conflicts, ", "))
		b.WriteString("Resolve every conflict explicitly in your response; do not both retire and rewrite the same id.\n\n")
	}
	b.WriteString(insightJSONInstructions)

	return generateFromPrompt(ctx, router, primary, b.String())
}

func buildBatchPrompt(mem *memtier.Manager, batch []memtier.Entry, botName, userName, rolePreamble string) string {
	k := mem.Kernel().Snapshot()

	var b strings.Builder
	if rolePreamble != "" {
		b.WriteString(rolePreamble)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "You are %s's sleep engine, consolidating memory about your user %s while they are away.\n", botName, userName)
	b.WriteString("Review the memory batch below and extract durable insights.\n\n")

	fmt.Fprintf(&b, "IDENTITY VALUES: %s\n", strings.Join(k.Values, ", "))
	fmt.Fprintf(&b, "COMMUNICATION STYLE: %s\n\n", k.CommunicationStyle)

	byTier := make(map[memtier.Tier][]memtier.Entry)
	for _, e := range batch {
		byTier[e.Tier] = append(byTier[e.Tier], e)
	}
	for _, tier := range memtier.AllTiers {
		entries := byTier[tier]
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
