package memtier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Promotion is one heuristic distillation result: a piece of content the
// passive sleep pass proposes recording at a new tier, with the reason
// that drove the promotion (used to build the entry's source string,
// "sleep:<reason>").
type Promotion struct {
	ToTier  Tier
	Content string
	Reason  string
}

// SleepSummary is the result of a sleep cycle, passive or agentic.
type SleepSummary struct {
	Distilled   string
	PromotedIDs []uuid.UUID
	Promotions  []Promotion
}

const repetitionThreshold = 3

// distill is the passive sleep engine's pure heuristic (C9): deterministic,
// bounded, and never proposes a Core promotion. It counts repeated
// normalized Episodic content and proposes a Semantic promotion for
// anything repeated at least repetitionThreshold times, and promotes the
// single highest-|valence| Episodic entry from the last 24h to Reflective,
// as an emotionally salient moment worth remembering past the forgetting
// pass.
func distill(episodic []Entry, now time.Time) SleepSummary {
	counts := make(map[string]int)
	firstContent := make(map[string]string)
	for _, e := range episodic {
		key := NormalizeContent(e.Content)
		if key == "" {
			continue
		}
		counts[key]++
		if _, ok := firstContent[key]; !ok {
			firstContent[key] = e.Content
		}
	}

	var keys []string
	for key, n := range counts {
		if n >= repetitionThreshold {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var promotions []Promotion
	for _, key := range keys {
		promotions = append(promotions, Promotion{
			ToTier:  Semantic,
			Content: firstContent[key],
			Reason:  "repetition",
		})
	}

	var mostSalient Entry
	var haveSalient bool
	cutoff := now.Add(-24 * time.Hour)
	for _, e := range episodic {
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		if !haveSalient || abs32(e.Valence) > abs32(mostSalient.Valence) {
			mostSalient = e
			haveSalient = true
		}
	}
	if haveSalient && mostSalient.Valence != 0 {
		promotions = append(promotions, Promotion{
			ToTier:  Reflective,
			Content: mostSalient.Content,
			Reason:  "salience",
		})
	}

	var summaryParts []string
	if len(keys) > 0 {
		summaryParts = append(summaryParts, fmt.Sprintf("%d repeated theme(s) distilled", len(keys)))
	}
	if haveSalient && mostSalient.Valence != 0 {
		summaryParts = append(summaryParts, "one emotionally salient moment surfaced")
	}
	if len(summaryParts) == 0 {
		summaryParts = append(summaryParts, "no distillable patterns found this cycle")
	}

	return SleepSummary{
		Distilled:  strings.Join(summaryParts, "; "),
		Promotions: promotions,
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// traitKeywords maps each identity-kernel trait to the normalized-content
// substrings whose presence in an Episodic entry counts as a positive signal
// for that trait this cycle.
var traitKeywords = map[string][]string{
	"truth-seeking": {"verify", "confirm", "double-check", "fact-check"},
	"helpfulness":   {"thank", "helped", "fixed", "solved"},
	"proactiveness": {"reminded", "suggested", "followed up", "proactively"},
	"honesty":       {"honestly", "to be clear", "i was wrong", "my mistake"},
	"curiosity":     {"?"},
}

// traitSignals recomputes a per-trait delta in [0,1] from the last 24h of
// Episodic entries: the fraction of entries whose normalized content
// contains at least one of that trait's keywords. A trait with no matching
// entries this cycle is omitted rather than reported as 0, so an idle
// window leaves its score untouched instead of decaying it toward neutral.
func traitSignals(episodic []Entry, now time.Time) map[string]float32 {
	cutoff := now.Add(-24 * time.Hour)
	var recent []Entry
	for _, e := range episodic {
		if !e.CreatedAt.Before(cutoff) {
			recent = append(recent, e)
		}
	}
	if len(recent) == 0 {
		return nil
	}

	signals := make(map[string]float32)
	for trait, keywords := range traitKeywords {
		matches := 0
		for _, e := range recent {
			content := strings.ToLower(e.Content)
			for _, kw := range keywords {
				if strings.Contains(content, kw) {
					matches++
					break
				}
			}
		}
		if matches > 0 {
			signals[trait] = float32(matches) / float32(len(recent))
		}
	}
	return signals
}

// RunSleepCycle executes the passive sleep pass (C9): back up the event
// log, deduplicate by content, distill the current Episodic snapshot,
// record a sleep:cycle marker entry with the distilled text, record each
// proposed promotion tagged with its reason, and sync the vault.
func (m *Manager) RunSleepCycle() (SleepSummary, error) {
	if err := m.log.Backup(); err != nil {
		return SleepSummary{}, fmt.Errorf("memtier: backing up event log before sleep: %w", err)
	}
	if _, err := m.DeduplicateByContent(); err != nil {
		return SleepSummary{}, fmt.Errorf("memtier: deduplicating before sleep: %w", err)
	}

	episodic := m.store.ByTier(Episodic)
	now := time.Now().UTC()
	summary := distill(episodic, now)

	for trait, delta := range traitSignals(episodic, now) {
		m.kernel.UpdateTraitScore(trait, delta)
	}

	markerEntry, err := m.Record(Semantic, summary.Distilled, "sleep:cycle")
	if err != nil {
		return SleepSummary{}, fmt.Errorf("memtier: recording sleep cycle marker: %w", err)
	}
	summary.PromotedIDs = append(summary.PromotedIDs, markerEntry.ID)

	for _, p := range summary.Promotions {
		e, err := m.Record(p.ToTier, p.Content, "sleep:"+p.Reason)
		if err != nil {
			return summary, fmt.Errorf("memtier: recording sleep promotion: %w", err)
		}
		summary.PromotedIDs = append(summary.PromotedIDs, e.ID)
	}

	m.syncVault()
	return summary, nil
}
