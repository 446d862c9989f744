package sleep

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"aigent/internal/memtier"
)

type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (f *fakeLLM) ChatWithFallback(ctx context.Context, primary, prompt string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.replies) {
		return "", "", fmt.Errorf("no more scripted replies")
	}
	return "ollama", f.replies[i], nil
}

func testManager(t *testing.T) *memtier.Manager {
	t.Helper()
	log := memtier.NewEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	return memtier.NewManager(log)
}

func TestGenerateParsesInsights(t *testing.T) {
	mem := testManager(t)
	mem.Record(memtier.Episodic, "talked about a trip to Kyoto", "user-input")

	reply := `{"learned_about_user":["user is planning a trip to Kyoto"],"synthesis":"user is trip-planning"}`
	llm := &fakeLLM{replies: []string{reply}}

	insights, ok := Generate(context.Background(), llm, "ollama", mem, "Aigent", "Priya")
	if !ok {
		t.Fatal("expected successful generation")
	}
	if len(insights.LearnedAboutUser) != 1 {
		t.Errorf("expected 1 learned fact, got %+v", insights.LearnedAboutUser)
	}
	if insights.Synthesis != "user is trip-planning" {
		t.Errorf("unexpected synthesis: %s", insights.Synthesis)
	}
}

func TestGenerateReturnsFalseOnUnparsableReply(t *testing.T) {
	mem := testManager(t)
	llm := &fakeLLM{replies: []string{"not json"}}

	if _, ok := Generate(context.Background(), llm, "ollama", mem, "Aigent", "Priya"); ok {
		t.Error("expected generation to fail on unparsable reply")
	}
}

func TestApplyRoutesEveryInsightField(t *testing.T) {
	mem := testManager(t)
	core, err := mem.Record(memtier.Core, "stale fact to retire", "seed")
	if err != nil {
		t.Fatalf("seeding core entry: %v", err)
	}

	insights := Insights{
		LearnedAboutUser:       []string{"user likes tea"},
		FollowUps:              []string{"check back about tea order"},
		ReflectiveThoughts:     []string{"user seems relaxed today"},
		RelationshipMilestones: []string{"first time sharing a personal story"},
		Perspectives:           []Perspective{{Topic: "coffee", View: "user prefers it black"}},
		Contradictions:         []string{"user said they don't drink tea last week"},
		ToolInsights:           []string{"web_search works well for weather queries"},
		Synthesis:              "the user is exploring new routines",
		UserProfileUpdates:     []ProfileUpdate{{Key: "timezone", Value: "Asia/Kolkata"}},
		RetireCoreIDs:          []string{core.ID.String()[:8]},
		FreeMemories:           []FreeMemory{{Tier: "semantic", Content: "user works in fintech", Tags: "job, fintech"}},
	}

	summary, err := Apply(mem, insights)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(summary.PromotedIDs) == 0 {
		t.Error("expected promoted ids to be recorded")
	}

	userProfile := mem.EntriesByTier(memtier.UserProfile)
	foundTimezone := false
	for _, e := range userProfile {
		if e.Content == "timezone=Asia/Kolkata" {
			foundTimezone = true
		}
	}
	if !foundTimezone {
		t.Errorf("expected timezone profile update, got %+v", userProfile)
	}

	for _, e := range mem.EntriesByTier(memtier.Core) {
		if e.ID == core.ID {
			t.Error("expected stale core entry to be retired")
		}
	}

	semantic := mem.EntriesByTier(memtier.Semantic)
	foundFree := false
	for _, e := range semantic {
		if e.Content == "user works in fintech" {
			foundFree = true
			if len(e.Tags) != 2 || e.Tags[0] != "job" || e.Tags[1] != "fintech" {
				t.Errorf("expected trimmed lowercase tags, got %+v", e.Tags)
			}
		}
	}
	if !foundFree {
		t.Error("expected free memory entry recorded")
	}
}

func TestApplyLLMPromotionSkipsWhenAlreadyMoreDurable(t *testing.T) {
	mem := testManager(t)
	core, _ := mem.Record(memtier.Core, "durable fact", "seed")

	_, err := Apply(mem, Insights{
		LLMPromotions: []LLMPromotion{{IDPrefix: core.ID.String()[:8], Tier: "episodic"}},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	episodic := mem.EntriesByTier(memtier.Episodic)
	for _, e := range episodic {
		if e.Content == "durable fact" {
			t.Error("expected promotion to episodic (less durable) to be skipped")
		}
	}
}

func TestBatchEntriesReplicatesIdentityIntoEveryBatch(t *testing.T) {
	var entries []memtier.Entry
	entries = append(entries, memtier.NewEntry(memtier.Core, "core fact", "seed"))
	entries = append(entries, memtier.NewEntry(memtier.UserProfile, "name=Priya", "seed"))
	for i := 0; i < 5; i++ {
		entries = append(entries, memtier.NewEntry(memtier.Episodic, fmt.Sprintf("episodic %d", i), "user-input"))
	}

	batches := batchEntries(entries, 2)
	if len(batches) == 0 {
		t.Fatal("expected at least one batch")
	}
	for _, batch := range batches {
		var hasCore, hasProfile bool
		for _, e := range batch {
			if e.Tier == memtier.Core {
				hasCore = true
			}
			if e.Tier == memtier.UserProfile {
				hasProfile = true
			}
		}
		if !hasCore || !hasProfile {
			t.Errorf("expected every batch to carry identity entries, got %+v", batch)
		}
	}
}

func TestConflictingCoreIDsDetectsDisagreement(t *testing.T) {
	results := []Insights{
		{RetireCoreIDs: []string{"abc12345"}},
		{},
		{RewriteCore: []CoreRewrite{{IDPrefix: "abc12345", NewContent: "new"}}},
		{},
	}
	conflicts := conflictingCoreIDs(results)
	if len(conflicts) != 1 || conflicts[0] != "abc12345" {
		t.Errorf("expected one conflict on abc12345, got %+v", conflicts)
	}
}

func TestGenerateMultiAgentFallsBackToSingleAgentWhenAllBatchesFail(t *testing.T) {
	mem := testManager(t)
	mem.Record(memtier.Episodic, "something happened", "user-input")

	// 4 specialist calls fail per batch (unparsable), single-agent fallback
	// call per batch also fails, then the final full fallback succeeds.
	llm := &fakeLLM{replies: []string{
		"not json", "not json", "not json", "not json", // specialists
		"not json", // per-batch single-agent fallback
		`{"synthesis":"fallback synthesis"}`,             // final full fallback
	}}

	insights := GenerateMultiAgent(context.Background(), llm, "ollama", mem, "Aigent", "Priya", 20)
	if insights.Synthesis != "fallback synthesis" {
		t.Errorf("expected fallback synthesis, got %+v", insights)
	}
}
