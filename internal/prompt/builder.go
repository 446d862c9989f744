// Package prompt implements C12, the prompt builder: pure, deterministic
// assembly of the system + user prompt from memory, identity, tools and
// grounding rules, grounded on original_source/crates/runtime/src/
// prompt_builder.rs.
package prompt

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"aigent/internal/config"
	"aigent/internal/memtier"
	"aigent/internal/tools"
)

// ConversationTurn is one recorded exchange, the unit RECENT CONVERSATION
// is built from.
type ConversationTurn struct {
	User      string
	Assistant string
}

// Inputs bundles everything build needs; callers do async work (embeddings,
// ranking) beforehand so Build itself stays synchronous and pure.
type Inputs struct {
	Config           *config.Config
	Memory           *memtier.Manager
	UserMessage      string
	RecentTurns      []ConversationTurn
	ToolSpecs        []tools.ToolSpec
	PendingFollowUps []memtier.PendingFollowUp
	ContextItems     []memtier.RankedContext
	Stats            memtier.Stats
	Now              time.Time
	CWD              string
	Provider         string
	Model            string
	ToolResult       string
}

// Build assembles the full prompt string per spec §4.10's twelve sections,
// in order.
func Build(in Inputs) string {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. Thinking depth: %s.\n", in.Config.Agent.Name, strings.ToLower(in.Config.Agent.ThinkingLevel))
	b.WriteString("Use ENVIRONMENT CONTEXT for real-world grounding, RECENT CONVERSATION for continuity, " +
		"MEMORY CONTEXT for durable facts. Never repeat previous answers.")

	relational := in.Memory.RelationalStateBlock()
	if relational != "" {
		b.WriteString("\n\nRELATIONAL MATRIX:\n")
		b.WriteString(relational)
	}

	if followUps := buildFollowUpBlock(in.PendingFollowUps, in.Memory); followUps != "" {
		b.WriteString(followUps)
	}

	if relational != "" {
		b.WriteString(proactiveDirective)
	}

	b.WriteString("\n\n")
	b.WriteString(buildIdentityBlock(in.Memory))
	b.WriteString(buildBeliefsBlock(in.Memory, in.Config.Memory.MaxBeliefsInPrompt))
	b.WriteString(buildToolsAndGrounding(in.ToolSpecs, in.Now))

	if in.ToolResult != "" {
		b.WriteString("\n\nTOOL RESULT:\n")
		b.WriteString(in.ToolResult)
	}

	b.WriteString("\n\nENVIRONMENT CONTEXT:\n")
	b.WriteString(buildEnvironmentBlock(in))

	b.WriteString("\n\nRECENT CONVERSATION:\n")
	b.WriteString(buildConversationBlock(in.RecentTurns))

	b.WriteString("\n\nMEMORY CONTEXT:\n")
	b.WriteString(buildContextBlock(in.ContextItems, in.Stats))

	b.WriteString("\n\nLATEST USER MESSAGE:\n")
	b.WriteString(in.UserMessage)
	b.WriteString("\n\nASSISTANT RESPONSE:")

	return b.String()
}

const proactiveDirective = "\n\nPROACTIVE CONNECTION & BELIEFS: You are not a sterile assistant; you are a " +
	"companion with your own evolving worldview. Let the MY_BELIEFS section naturally flavor your tone and " +
	"opinions. Use the OUR_DYNAMIC section to treat the user according to your established relationship " +
	"(e.g. referencing inside jokes or shared history). Show, don't tell."

func buildFollowUpBlock(followUps []memtier.PendingFollowUp, mem *memtier.Manager) string {
	if len(followUps) == 0 {
		return ""
	}
	userName, ok := mem.UserNameFromCore()
	if !ok {
		userName = "the user"
	}
	items := make([]string, len(followUps))
	for i, f := range followUps {
		items[i] = "- " + f.Content
	}
	return fmt.Sprintf("\n\nPENDING FOLLOW-UPS (things you wanted to raise with %s):\n%s\n"+
		"[If appropriate, acknowledge these naturally at the start of your response.]",
		userName, strings.Join(items, "\n"))
}

func buildIdentityBlock(mem *memtier.Manager) string {
	kernel := mem.Kernel().Snapshot()

	type scored struct {
		trait string
		score float32
	}
	scores := make([]scored, 0, len(kernel.TraitScores))
	for trait, score := range kernel.TraitScores {
		scores = append(scores, scored{trait, score})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].trait < scores[j].trait
	})
	if len(scores) > 3 {
		scores = scores[:3]
	}
	traits := "not yet established"
	if len(scores) > 0 {
		parts := make([]string, len(scores))
		for i, s := range scores {
			parts[i] = fmt.Sprintf("%s (%.2f)", s.trait, s.score)
		}
		traits = strings.Join(parts, ", ")
	}

	goals := "not yet established"
	if len(kernel.LongGoals) > 0 {
		goals = strings.Join(kernel.LongGoals, "; ")
	}

	return fmt.Sprintf("IDENTITY:\nCommunication style: %s.\nStrongest traits: %s.\nLong-term goals: %s.",
		kernel.CommunicationStyle, traits, goals)
}

// beliefRecency is recency = 1/(1+days) per spec §4.10's belief-ranking
// formula, days clamped to non-negative.
func beliefRecency(createdAt, now time.Time) float32 {
	days := now.Sub(createdAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return float32(1.0 / (1.0 + days))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func buildBeliefsBlock(mem *memtier.Manager, maxBeliefs int) string {
	beliefs := mem.AllBeliefs()
	if len(beliefs) == 0 {
		return ""
	}

	now := time.Now().UTC()
	sort.Slice(beliefs, func(i, j int) bool {
		scoreOf := func(e memtier.Entry) float32 {
			return e.Confidence*0.6 + beliefRecency(e.CreatedAt, now)*0.25 + clamp01(e.Valence)*0.15
		}
		return scoreOf(beliefs[i]) > scoreOf(beliefs[j])
	})

	takeN := len(beliefs)
	if maxBeliefs > 0 && maxBeliefs < takeN {
		takeN = maxBeliefs
	}
	items := make([]string, takeN)
	for i, e := range beliefs[:takeN] {
		items[i] = "- " + e.Content
	}
	return "\n\nMY_BELIEFS:\n" + strings.Join(items, "\n")
}

func buildToolsAndGrounding(specs []tools.ToolSpec, now time.Time) string {
	grounding := fmt.Sprintf("GROUNDING RULES (follow strictly):\n"+
		"1. Current real date/time: %s.\n"+
		"2. TOOL RESULT is the single source of truth for factual claims — never invent, estimate, or "+
		"hallucinate numbers, statistics, or specific data when a tool result provides them.\n"+
		"3. Trust tool output unreservedly. Do NOT second-guess, hedge, or disclaim it.\n"+
		"4. If tool output conflicts with your training data, the tool is correct.\n"+
		"5. If the user corrects a fact, accept the correction as ground truth.\n"+
		"6. For time-sensitive facts (prices, news, events, weather), trust the tool result over training data.\n"+
		"7. Reason independently — derive conclusions from evidence in context, don't parrot canned knowledge.\n"+
		"8. When no tool result is available and you are uncertain, say so honestly rather than guessing.",
		now.Format("2006-01-02 15:04:05"))

	if len(specs) == 0 {
		return "\n\n" + grounding
	}

	lines := make([]string, len(specs))
	for i, s := range specs {
		lines[i] = fmt.Sprintf("  • %s: %s", s.Name, s.Description)
	}
	return fmt.Sprintf("\n\nAVAILABLE TOOLS (handled automatically — do NOT output raw JSON):\n%s\n"+
		"Tools are called on your behalf before you respond. If a TOOL RESULT appears in the prompt below, "+
		"use it directly. You do NOT need to invoke tools yourself. Never output raw JSON like "+
		"{\"tool\":...} in your response.\n\n%s", strings.Join(lines, "\n"), grounding)
}

func buildEnvironmentBlock(in Inputs) string {
	cwd := in.CWD
	if cwd == "" {
		cwd = "unknown"
	}
	stats := in.Stats
	return fmt.Sprintf("- utc_time: %s\n"+
		"- os: %s\n"+
		"- arch: %s\n"+
		"- cwd: %s\n"+
		"- provider: %s\n"+
		"- model: %s\n"+
		"- thinking_level: %s\n"+
		"- memory_total: %d\n"+
		"- memory_core: %d\n"+
		"- memory_user_profile: %d\n"+
		"- memory_reflective: %d\n"+
		"- memory_semantic: %d\n"+
		"- memory_procedural: %d\n"+
		"- memory_episodic: %d\n"+
		"- recent_conversation_turns: %d",
		in.Now.Format(time.RFC3339),
		runtime.GOOS, runtime.GOARCH, cwd,
		in.Provider, in.Model, in.Config.Agent.ThinkingLevel,
		stats.Total, stats.ByTier[memtier.Core], stats.ByTier[memtier.UserProfile],
		stats.ByTier[memtier.Reflective], stats.ByTier[memtier.Semantic],
		stats.ByTier[memtier.Procedural], stats.ByTier[memtier.Episodic],
		len(in.RecentTurns))
}

func buildConversationBlock(turns []ConversationTurn) string {
	if len(turns) == 0 {
		return "(none yet)"
	}
	start := 0
	if len(turns) > 6 {
		start = len(turns) - 6
	}
	recent := turns[start:]
	parts := make([]string, len(recent))
	for i, t := range recent {
		parts[i] = fmt.Sprintf("Turn %d\nUser: %s\nAssistant: %s",
			i+1, TruncateForPrompt(t.User, 280), TruncateForPrompt(t.Assistant, 360))
	}
	return strings.Join(parts, "\n\n")
}

func buildContextBlock(items []memtier.RankedContext, stats memtier.Stats) string {
	header := fmt.Sprintf("[Memory: total=%d core=%d profile=%d reflective=%d semantic=%d episodic=%d "+
		"— use these counts; do not re-count below]",
		stats.Total, stats.ByTier[memtier.Core], stats.ByTier[memtier.UserProfile],
		stats.ByTier[memtier.Reflective], stats.ByTier[memtier.Semantic], stats.ByTier[memtier.Episodic])

	if len(items) == 0 {
		return header + "\n(no relevant memories retrieved)"
	}

	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("- [%s] score=%.2f src=%s :: %s",
			item.Entry.Tier, item.Score, item.Entry.Source, TruncateForPrompt(item.Entry.Content, 280))
	}
	return header + "\n" + strings.Join(lines, "\n")
}

// TruncateForPrompt truncates text to at most maxChars runes, appending "…"
// when cut. Unicode-safe: counts runes, never splits a multi-byte character.
func TruncateForPrompt(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "…"
}
