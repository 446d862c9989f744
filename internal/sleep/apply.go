package sleep

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"aigent/internal/memtier"
)

// Apply routes every field of insights into the memory manager, then runs
// the passive sleep cycle on top for heuristic distillation and vault
// sync, accumulating every touched entry id into the returned summary.
// Grounded on original_source/crates/memory/src/manager/sleep_logic.rs's
// apply_agentic_sleep_insights.
func Apply(mem *memtier.Manager, insights Insights) (memtier.SleepSummary, error) {
	var touched []uuid.UUID
	note := func(id uuid.UUID, ok bool) {
		if ok {
			touched = append(touched, id)
		}
	}

	for _, fact := range insights.LearnedAboutUser {
		note(record(mem, memtier.UserProfile, fact, "sleep:learned-about-user", []string{"user_fact"}))
	}
	for _, f := range insights.FollowUps {
		note(record(mem, memtier.Reflective, f, "follow-up", []string{"follow_up"}))
	}
	for _, r := range insights.ReflectiveThoughts {
		note(record(mem, memtier.Reflective, r, "sleep:reflection", []string{"reflection"}))
	}
	for _, m := range insights.RelationshipMilestones {
		note(record(mem, memtier.Reflective, m, "sleep:relationship", []string{"relationship", "dynamic"}))
	}
	for _, p := range insights.Perspectives {
		content := fmt.Sprintf("%s: %s", p.Topic, p.View)
		note(record(mem, memtier.Semantic, content, "sleep:perspective", []string{"agent_belief", "perspective"}))
	}
	for _, c := range insights.Contradictions {
		note(record(mem, memtier.Semantic, c, "sleep:contradiction", []string{"contradiction"}))
	}
	for _, t := range insights.ToolInsights {
		note(record(mem, memtier.Procedural, t, "sleep:tool-insight", []string{"tool_pattern"}))
	}
	if insights.Synthesis != "" {
		note(record(mem, memtier.Semantic, insights.Synthesis, "sleep:synthesis", []string{"synthesis"}))
	}

	for _, u := range insights.UserProfileUpdates {
		if u.Key == "" {
			continue
		}
		if e, err := mem.RecordUserProfileKeyed(u.Key, u.Value, "sleep"); err == nil {
			touched = append(touched, e.ID)
		} else {
			slog.Warn("sleep: failed to apply user profile update", "key", u.Key, "err", err)
		}
	}

	if len(insights.RetireCoreIDs) > 0 {
		if _, err := mem.RetireByIDPrefixes(insights.RetireCoreIDs); err != nil {
			slog.Warn("sleep: failed to retire core ids", "err", err)
		}
	}

	for _, rw := range insights.RewriteCore {
		if rw.IDPrefix == "" || rw.NewContent == "" {
			continue
		}
		if _, err := mem.RetireByIDPrefixes([]string{rw.IDPrefix}); err != nil {
			slog.Warn("sleep: failed to retire core entry for rewrite", "err", err)
			continue
		}
		note(record(mem, memtier.Core, rw.NewContent, "sleep:core-rewrite", []string{"core_rewrite"}))
	}

	for _, cons := range insights.ConsolidateCore {
		prefixes := splitAndTrim(cons.IDPrefixes)
		if len(prefixes) == 0 || cons.Synthesis == "" {
			continue
		}
		if _, err := mem.RetireByIDPrefixes(prefixes); err != nil {
			slog.Warn("sleep: failed to retire core entries for consolidation", "err", err)
			continue
		}
		note(record(mem, memtier.Core, cons.Synthesis, "sleep:core-consolidation", []string{"core_consolidation"}))
	}

	for _, p := range insights.LLMPromotions {
		note(applyLLMPromotion(mem, p))
	}

	for _, fm := range insights.FreeMemories {
		tier, ok := memtier.ParseTier(strings.ToLower(strings.TrimSpace(fm.Tier)))
		if !ok || fm.Content == "" {
			continue
		}
		tags := filterEmpty(lowerTrimAll(splitAndTrim(fm.Tags)))
		note(record(mem, tier, fm.Content, "sleep:free-memory", tags))
	}

	summary, err := mem.RunSleepCycle()
	if err != nil {
		return summary, err
	}
	summary.PromotedIDs = append(summary.PromotedIDs, touched...)
	return summary, nil
}

func record(mem *memtier.Manager, tier memtier.Tier, content, source string, tags []string) (uuid.UUID, bool) {
	if content == "" {
		return uuid.UUID{}, false
	}
	e, err := mem.RecordTagged(tier, content, source, tags)
	if err != nil {
		slog.Warn("sleep: failed to record insight", "tier", tier.String(), "source", source, "err", err)
		return uuid.UUID{}, false
	}
	return e.ID, true
}

// applyLLMPromotion records a copy of an existing entry at a new tier (the
// original entry stays where it is), skipping it if
// already at or above the target tier's durability (AllTiers is ordered
// durable-to-ephemeral, so "above" means an earlier index).
func applyLLMPromotion(mem *memtier.Manager, p LLMPromotion) (uuid.UUID, bool) {
	if p.IDPrefix == "" {
		return uuid.UUID{}, false
	}
	target, ok := memtier.ParseTier(strings.ToLower(strings.TrimSpace(p.Tier)))
	if !ok {
		return uuid.UUID{}, false
	}
	entry, ok := mem.FindByIDPrefix(p.IDPrefix)
	if !ok {
		return uuid.UUID{}, false
	}
	if tierRank(entry.Tier) <= tierRank(target) {
		return uuid.UUID{}, false
	}
	tags := append(append([]string{}, entry.Tags...), "llm_promoted")
	tags = dedupStrings(tags)

	return record(mem, target, entry.Content, "sleep:llm-promoted-from-"+entry.Tier.String(), tags)
}

func tierRank(t memtier.Tier) int {
	for i, candidate := range memtier.AllTiers {
		if candidate == t {
			return i
		}
	}
	return len(memtier.AllTiers)
}

func splitAndTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lowerTrimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
