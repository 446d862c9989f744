// Package memtier implements the persistent multi-tier memory substrate:
// the event log (C1), entry store (C2), secondary index (C3), identity
// kernel (C4), consistency firewall (C5), memory manager (C6) and
// retrieval ranker (C7).
package memtier

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tier is the semantic layer an Entry belongs to, from durable to ephemeral.
type Tier int

const (
	Core Tier = iota
	UserProfile
	Reflective
	Semantic
	Procedural
	Episodic
)

// String renders the tier as the lowercase slug used in logs, tags, tool
// output and the vault layout.
func (t Tier) String() string {
	switch t {
	case Core:
		return "core"
	case UserProfile:
		return "user_profile"
	case Reflective:
		return "reflective"
	case Semantic:
		return "semantic"
	case Procedural:
		return "procedural"
	case Episodic:
		return "episodic"
	default:
		return "unknown"
	}
}

// ParseTier parses the slug produced by Tier.String, case-insensitively.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "core":
		return Core, true
	case "user_profile", "userprofile":
		return UserProfile, true
	case "reflective":
		return Reflective, true
	case "semantic":
		return Semantic, true
	case "procedural":
		return Procedural, true
	case "episodic":
		return Episodic, true
	default:
		return 0, false
	}
}

// AllTiers lists every tier in durable-to-ephemeral order.
var AllTiers = []Tier{Core, UserProfile, Reflective, Semantic, Procedural, Episodic}

// Entry is the atomic unit of memory (spec §3).
type Entry struct {
	ID              uuid.UUID `json:"id"`
	Tier            Tier      `json:"tier"`
	Content         string    `json:"content"`
	Source          string    `json:"source"`
	Confidence      float32   `json:"confidence"`
	Valence         float32   `json:"valence"`
	CreatedAt       time.Time `json:"created_at"`
	ProvenanceHash  string    `json:"provenance_hash"`
	Tags            []string  `json:"tags,omitempty"`
	Embedding       []float32 `json:"embedding,omitempty"`
}

// DefaultConfidence is applied when a caller doesn't supply one.
const DefaultConfidence float32 = 0.7

// NewEntry builds a fresh Entry with a new id, default confidence/valence,
// and a deterministic provenance hash over tier+content+source+timestamp.
// Provenance hashes are opaque identifiers, not cryptographic signatures
// (spec §1 non-goals).
func NewEntry(tier Tier, content, source string) Entry {
	now := time.Now().UTC()
	e := Entry{
		ID:         uuid.New(),
		Tier:       tier,
		Content:    content,
		Source:     source,
		Confidence: DefaultConfidence,
		Valence:    0,
		CreatedAt:  now,
	}
	e.ProvenanceHash = provenanceHash(e)
	return e
}

func provenanceHash(e Entry) string {
	h := sha256.New()
	h.Write([]byte(e.Tier.String()))
	h.Write([]byte{0})
	h.Write([]byte(e.Content))
	h.Write([]byte{0})
	h.Write([]byte(e.Source))
	h.Write([]byte{0})
	h.Write([]byte(e.CreatedAt.Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeContent implements spec §3's normalization: trim, lowercase,
// collapse internal whitespace.
func NormalizeContent(content string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(content)))
	return strings.Join(fields, " ")
}

// ContentKey is the (tier, normalized content) dedup key used by the
// entry store's invariant (b): uniqueness of (tier, normalized(content)).
func ContentKey(tier Tier, content string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(content)))
	return tier.String() + ":" + hex.EncodeToString(sum[:])
}

// EventRecord is the replayable unit appended to the event log (spec §3).
type EventRecord struct {
	EventID    uuid.UUID `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Entry      Entry     `json:"entry"`
}

// NewEventRecord wraps an entry for durable append.
func NewEventRecord(e Entry) EventRecord {
	return EventRecord{
		EventID:    uuid.New(),
		OccurredAt: time.Now().UTC(),
		Entry:      e,
	}
}
