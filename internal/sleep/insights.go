// Package sleep implements the agentic and multi-agent modes of the sleep
// engine (C9): LLM-driven memory consolidation that goes beyond the
// passive heuristic distillation already implemented by
// memtier.Manager.RunSleepCycle. Grounded on
// original_source/crates/memory/src/manager/sleep_logic.rs (insight
// routing) and original_source/crates/runtime/src/runtime/sleep.rs
// (single- and multi-agent generation).
package sleep

// Perspective is a topic the agent has formed a durable point of view on.
type Perspective struct {
	Topic string `json:"topic"`
	View  string `json:"view"`
}

// ProfileUpdate is a keyed fact about the user to upsert into UserProfile.
type ProfileUpdate struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CoreRewrite replaces one existing Core entry, identified by a short id
// prefix, with new content.
type CoreRewrite struct {
	IDPrefix   string `json:"id_prefix"`
	NewContent string `json:"new_content"`
}

// CoreConsolidation merges several existing Core entries (identified by a
// comma-separated list of short id prefixes) into one synthesized entry.
type CoreConsolidation struct {
	IDPrefixes string `json:"id_prefixes"`
	Synthesis  string `json:"synthesis"`
}

// LLMPromotion copies an existing entry, identified by a short id prefix,
// into a new (necessarily more durable) tier.
type LLMPromotion struct {
	IDPrefix string `json:"id_prefix"`
	Tier     string `json:"tier"`
}

// FreeMemory is a brand-new entry the LLM wants recorded at an arbitrary
// tier, outside the fixed routing the other insight fields follow.
type FreeMemory struct {
	Tier    string `json:"tier"`
	Content string `json:"content"`
	Tags    string `json:"tags"`
}

// Insights is the full structured output of one agentic sleep pass,
// mirroring Rust's AgenticSleepInsights. Every field is optional; an empty
// pass (every field nil/zero) is valid and simply falls through to the
// passive distillation RunSleepCycle performs on top.
type Insights struct {
	LearnedAboutUser        []string            `json:"learned_about_user"`
	FollowUps               []string            `json:"follow_ups"`
	ReflectiveThoughts      []string            `json:"reflective_thoughts"`
	RelationshipMilestones  []string            `json:"relationship_milestones"`
	Perspectives            []Perspective       `json:"perspectives"`
	Contradictions          []string            `json:"contradictions"`
	ToolInsights            []string            `json:"tool_insights"`
	Synthesis               string              `json:"synthesis"`
	UserProfileUpdates      []ProfileUpdate     `json:"user_profile_updates"`
	RetireCoreIDs           []string            `json:"retire_core_ids"`
	RewriteCore             []CoreRewrite       `json:"rewrite_core"`
	ConsolidateCore         []CoreConsolidation `json:"consolidate_core"`
	LLMPromotions           []LLMPromotion      `json:"llm_promotions"`
	FreeMemories            []FreeMemory        `json:"free_memories"`
}

// merge appends every list field of other onto i in place, and overwrites
// scalar/keyed fields with other's when other has a value, used both to
// fold a batch's fallback into its result and to merge every batch's
// insights into one final set.
func (i *Insights) merge(other Insights) {
	i.LearnedAboutUser = append(i.LearnedAboutUser, other.LearnedAboutUser...)
	i.FollowUps = append(i.FollowUps, other.FollowUps...)
	i.ReflectiveThoughts = append(i.ReflectiveThoughts, other.ReflectiveThoughts...)
	i.RelationshipMilestones = append(i.RelationshipMilestones, other.RelationshipMilestones...)
	i.Perspectives = append(i.Perspectives, other.Perspectives...)
	i.Contradictions = append(i.Contradictions, other.Contradictions...)
	i.ToolInsights = append(i.ToolInsights, other.ToolInsights...)
	if other.Synthesis != "" {
		if i.Synthesis == "" {
			i.Synthesis = other.Synthesis
		} else {
			i.Synthesis += "\n" + other.Synthesis
		}
	}
	i.RetireCoreIDs = append(i.RetireCoreIDs, other.RetireCoreIDs...)
	i.RewriteCore = append(i.RewriteCore, other.RewriteCore...)
	i.ConsolidateCore = append(i.ConsolidateCore, other.ConsolidateCore...)
	i.LLMPromotions = append(i.LLMPromotions, other.LLMPromotions...)
	i.FreeMemories = append(i.FreeMemories, other.FreeMemories...)

	i.UserProfileUpdates = mergeProfileUpdates(i.UserProfileUpdates, other.UserProfileUpdates)
}

// mergeProfileUpdates folds incoming updates into existing ones, keeping
// the latest value for any repeated key.
func mergeProfileUpdates(existing, incoming []ProfileUpdate) []ProfileUpdate {
	byKey := make(map[string]int, len(existing))
	for idx, u := range existing {
		byKey[u.Key] = idx
	}
	for _, u := range incoming {
		if idx, ok := byKey[u.Key]; ok {
			existing[idx] = u
			continue
		}
		byKey[u.Key] = len(existing)
		existing = append(existing, u)
	}
	return existing
}
