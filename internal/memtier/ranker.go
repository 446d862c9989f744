package memtier

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// tierWeight is the fixed per-tier contribution to the ranking score
// (spec §4.6). Core outranks everything else; Episodic is the floor.
var tierWeight = map[Tier]float32{
	Core:        1.0,
	UserProfile: 0.85,
	Reflective:  0.75,
	Semantic:    0.75,
	Procedural:  0.6,
	Episodic:    0.5,
}

// Ranking weight constants for the hybrid score (spec §4.6). These five
// terms must sum to 1.0.
const (
	weightTier       = 0.40
	weightRecency    = 0.25
	weightLexical    = 0.15
	weightVector     = 0.10
	weightConfidence = 0.10
)

// RankedContext pairs a scored entry with a human-readable rationale for
// its score, the unit the prompt builder (C12) consumes.
type RankedContext struct {
	Entry      Entry
	Score      float32
	Rationale  string
	TierScore  float32
	Recency    float32
	Lexical    float32
	Vector     float32
	Confidence float32
}

// coreSyntheticScore is the score the memory manager assigns to the
// synthetic identity-summary context item it prepends ahead of everything
// else, so identity is never outranked (spec §4.6).
const coreSyntheticScore float32 = 2.0

// Tokenize splits content into lowercased tokens of unicode-alphanumeric
// runs with length >= 3 — applied to both the query and each entry for
// lexical overlap scoring, so both sides of the comparison agree.
func Tokenize(content string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() >= 3 {
			tokens = append(tokens, strings.ToLower(cur.String()))
		}
		cur.Reset()
	}
	for _, r := range content {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// recencyScore implements 1/(1+age_hours/24): a full day old halves the
// score, asymptoting toward zero without ever hitting it.
func recencyScore(createdAt, now time.Time) float32 {
	ageHours := float32(now.Sub(createdAt).Hours())
	if ageHours < 0 {
		ageHours = 0
	}
	return 1.0 / (1.0 + ageHours/24.0)
}

// lexicalScore is the fraction of query tokens also present in the
// entry's tokens — simple overlap, not TF-IDF, so it stays exactly
// reproducible across runs.
func lexicalScore(queryTokens []string, entryTokens map[string]struct{}) float32 {
	if len(queryTokens) == 0 {
		return 0
	}
	var hits int
	for _, t := range queryTokens {
		if _, ok := entryTokens[t]; ok {
			hits++
		}
	}
	return float32(hits) / float32(len(queryTokens))
}

// cosineSimilarity returns the cosine similarity of two equal-length
// vectors, or 0 if either is empty/mismatched/zero-norm.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// scoreEntry implements the exact hybrid formula from spec §4.6:
//
//	score = 0.40*tier + 0.25*recency + 0.15*lexical + 0.10*vector + 0.10*confidence
func scoreEntry(e Entry, queryTokens []string, queryEmbedding []float32, now time.Time) RankedContext {
	entryTokenSet := make(map[string]struct{})
	for _, t := range Tokenize(e.Content) {
		entryTokenSet[t] = struct{}{}
	}

	tScore := tierWeight[e.Tier]
	rScore := recencyScore(e.CreatedAt, now)
	lScore := lexicalScore(queryTokens, entryTokenSet)
	vScore := cosineSimilarity(queryEmbedding, e.Embedding)
	cScore := e.Confidence

	total := weightTier*tScore +
		weightRecency*rScore +
		weightLexical*lScore +
		weightVector*vScore +
		weightConfidence*cScore

	return RankedContext{
		Entry:      e,
		Score:      total,
		Rationale:  rationale(e, tScore, rScore, lScore, vScore, cScore),
		TierScore:  tScore,
		Recency:    rScore,
		Lexical:    lScore,
		Vector:     vScore,
		Confidence: cScore,
	}
}

func rationale(e Entry, tScore, rScore, lScore, vScore, cScore float32) string {
	return fmt.Sprintf(
		"tier=%s(%.2f) recency=%.2f lexical=%.2f vector=%.2f confidence=%.2f",
		e.Tier, tScore, rScore, lScore, vScore, cScore,
	)
}

// Rank is the retrieval ranker (C7): a pure function over snapshots of
// non-Core and Core entries. Core and non-Core are combined and
// deduplicated by id (Core wins ties), each survivor is scored, results
// sort descending by score with ties broken by newer created_at, and the
// top `limit` are returned. limit <= 0 means unlimited.
func Rank(nonCoreEntries, coreEntries []Entry, query string, limit int, queryEmbedding []float32) []RankedContext {
	return rankAt(nonCoreEntries, coreEntries, query, limit, queryEmbedding, time.Now().UTC())
}

func rankAt(nonCoreEntries, coreEntries []Entry, query string, limit int, queryEmbedding []float32, now time.Time) []RankedContext {
	queryTokens := Tokenize(query)

	seen := make(map[uuid.UUID]struct{}, len(coreEntries)+len(nonCoreEntries))
	combined := make([]Entry, 0, len(coreEntries)+len(nonCoreEntries))
	for _, e := range coreEntries {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		combined = append(combined, e)
	}
	for _, e := range nonCoreEntries {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		combined = append(combined, e)
	}

	out := make([]RankedContext, 0, len(combined))
	for _, e := range combined {
		out = append(out, scoreEntry(e, queryTokens, queryEmbedding, now))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Entry.CreatedAt.After(out[j].Entry.CreatedAt)
	})

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// SyntheticIdentityContext builds the synthetic Core-tier RankedContext the
// memory manager prepends when the vault has key-value identity summaries,
// so identity can never be outranked by ordinary scoring.
func SyntheticIdentityContext(summary string) RankedContext {
	e := NewEntry(Core, summary, "vault:identity-summary")
	return RankedContext{
		Entry:     e,
		Score:     coreSyntheticScore,
		Rationale: "synthetic identity summary, always ranked first",
	}
}
