package memtier

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmbeddingFunc computes a dense embedding for a piece of text. A nil
// embedding func means no vector scoring is available; the ranker then
// always scores the vector term as 0, which is tolerated per spec §4.6.
type EmbeddingFunc func(text string) ([]float32, error)

// VaultSyncer is the contract the vault projector (C8) satisfies so the
// manager can push its full entry set after every mutation without
// memtier importing the vault package (which itself depends on memtier).
type VaultSyncer interface {
	Sync(entries []Entry) error
	IdentitySummary() (string, bool)
}

// VectorIndex is the contract the sqlite-vec-backed nearest-neighbor store
// (internal/vectorindex) satisfies, kept narrow so memtier doesn't need to
// import it (it in turn imports memtier for Tier).
type VectorIndex interface {
	Put(id string, tier Tier, embedding []float32) error
	Remove(id string) error
}

// Manager is the memory manager (C6): the top-level facade orchestrating
// the event log, entry store, secondary index, identity kernel and
// consistency firewall behind a single sequenced API. Every mutating
// operation follows the same order: append-to-log, insert-to-store,
// update-index, sync-vault-if-configured.
type Manager struct {
	log    *EventLog
	store  *Store
	index  *Index // optional, nil if not configured
	kernel *Kernel
	vault  VaultSyncer // optional, nil if not configured
	embed  EmbeddingFunc
	vector VectorIndex // optional, nil if not configured
	lex    *LexIndex   // optional, nil if not configured
}

// ManagerOption configures optional collaborators at construction time.
type ManagerOption func(*Manager)

// WithIndex attaches a secondary index (C3).
func WithIndex(idx *Index) ManagerOption {
	return func(m *Manager) { m.index = idx }
}

// WithVault attaches a vault projector (C8).
func WithVault(v VaultSyncer) ManagerOption {
	return func(m *Manager) { m.vault = v }
}

// WithEmbedder attaches an embedding function.
func WithEmbedder(fn EmbeddingFunc) ManagerOption {
	return func(m *Manager) { m.embed = fn }
}

// WithVectorIndex attaches a nearest-neighbor vector index. The manager
// keeps it populated (Put on record, Remove when an entry drops out); the
// ranker does not query it and still computes the cosine term over every
// candidate's embedding.
func WithVectorIndex(vi VectorIndex) ManagerOption {
	return func(m *Manager) { m.vector = vi }
}

// WithLexIndex attaches a lexical shortlist accelerator (C7), queried
// ahead of the exact ranker pass once the store grows past
// lexShortlistThreshold entries.
func WithLexIndex(idx *LexIndex) ManagerOption {
	return func(m *Manager) { m.lex = idx }
}

// NewManager constructs a manager around an already-open event log, with a
// fresh store and kernel. Callers typically follow with Replay.
func NewManager(log *EventLog, opts ...ManagerOption) *Manager {
	m := &Manager{
		log:    log,
		store:  NewStore(),
		kernel: NewKernel(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Replay loads every event from the log and re-applies the firewall to
// each entry before inserting it into the store. Duplicates (by content
// key) are silently dropped; a quarantined Core entry aborts replay with
// an error, since a log that once held such an entry indicates either
// tampering or a firewall/kernel mismatch that must be investigated before
// the daemon serves traffic. Replay is idempotent: replaying the same log
// twice into fresh managers yields identical stores.
func (m *Manager) Replay() error {
	recs, err := m.log.Load()
	if err != nil {
		return fmt.Errorf("memtier: replaying event log: %w", err)
	}

	var entries []Entry
	for _, rec := range recs {
		e := rec.Entry
		result := CheckCoreWrite(m.kernel.Snapshot(), e)
		if result.Verdict == Quarantine {
			return fmt.Errorf("memtier: replay aborted, quarantined core entry %s: %s", e.ID, result.Reason)
		}
		entries = append(entries, e)
	}

	deduped := make([]Entry, 0, len(entries))
	seenContent := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := ContentKey(e.Tier, e.Content)
		if seenContent[key] {
			continue
		}
		seenContent[key] = true
		deduped = append(deduped, e)
	}

	m.store.Rebuild(deduped)
	return nil
}

// Kernel exposes the identity kernel for the prompt builder and sleep
// engine.
func (m *Manager) Kernel() *Kernel { return m.kernel }

// Embed runs the configured embedding function over text, returning false
// if no embedder is attached or embedding failed.
func (m *Manager) Embed(text string) ([]float32, bool) {
	if m.embed == nil {
		return nil, false
	}
	vec, err := m.embed(text)
	if err != nil {
		slog.Warn("memtier: query embedding failed", "err", err)
		return nil, false
	}
	return vec, true
}

// Store exposes the underlying entry store for read-only callers (the
// ranker, scheduler diagnostics).
func (m *Manager) Store() *Store { return m.store }

// recordEntry is the shared sequenced-mutation path every public write goes
// through: build the event, run the firewall, append, insert, index,
// sync vault.
func (m *Manager) recordEntry(e Entry) (Entry, error) {
	result := CheckCoreWrite(m.kernel.Snapshot(), e)
	if result.Verdict == Quarantine {
		return Entry{}, &QuarantineError{Reason: result.Reason}
	}

	if existingID, existing := m.store.FindContentDuplicate(e.Tier, e.Content); existing {
		found, _ := m.store.Get(existingID)
		return found, nil
	}

	if m.embed != nil {
		if vec, err := m.embed(e.Content); err == nil {
			e.Embedding = vec
		}
	}

	rec := NewEventRecord(e)
	if err := m.log.Append(rec); err != nil {
		return Entry{}, fmt.Errorf("memtier: appending event: %w", err)
	}

	if _, inserted := m.store.Insert(e); !inserted {
		return e, nil
	}

	if m.index != nil {
		if err := m.index.Put(e); err != nil {
			return Entry{}, fmt.Errorf("memtier: updating secondary index: %w", err)
		}
	}
	if m.vector != nil && len(e.Embedding) > 0 {
		if err := m.vector.Put(e.ID.String(), e.Tier, e.Embedding); err != nil {
			slog.Warn("memtier: vector index put failed", "entry", e.ID, "err", err)
		}
	}
	if m.lex != nil {
		if err := m.lex.Index(e); err != nil {
			slog.Warn("memtier: lexical index put failed", "entry", e.ID, "err", err)
		}
	}

	m.syncVault()
	return e, nil
}

// onRemoved keeps every secondary index in sync whenever an entry drops out
// of the store (retirement, consolidation, forgetting).
func (m *Manager) onRemoved(e Entry) {
	if m.index != nil {
		_ = m.index.Remove(e.ID, e.Tier)
	}
	if m.vector != nil {
		if err := m.vector.Remove(e.ID.String()); err != nil {
			slog.Warn("memtier: vector index remove failed", "entry", e.ID, "err", err)
		}
	}
	if m.lex != nil {
		if err := m.lex.Delete(e.ID); err != nil {
			slog.Warn("memtier: lexical index delete failed", "entry", e.ID, "err", err)
		}
	}
}

// Record assembles and persists a new entry, running it through the
// firewall first.
func (m *Manager) Record(tier Tier, content, source string) (Entry, error) {
	return m.recordEntry(NewEntry(tier, content, source))
}

// RecordTagged is Record plus a tag set.
func (m *Manager) RecordTagged(tier Tier, content, source string, tags []string) (Entry, error) {
	e := NewEntry(tier, content, source)
	e.Tags = tags
	return m.recordEntry(e)
}

// RecordUserProfileKeyed idempotently upserts a UserProfile fact: any
// prior entry whose content starts with "key=" is retired, then a fresh
// entry is recorded holding "key=value" tagged with category.
func (m *Manager) RecordUserProfileKeyed(key, value, category string) (Entry, error) {
	prefix := key + "="
	removed := m.store.Retain(func(e Entry) bool {
		return !(e.Tier == UserProfile && strings.HasPrefix(e.Content, prefix))
	})
	if len(removed) > 0 {
		if m.index != nil {
			for _, e := range removed {
				m.onRemoved(e)
			}
		}
		if err := m.rewriteLogFromStore(); err != nil {
			return Entry{}, err
		}
	}

	e := NewEntry(UserProfile, fmt.Sprintf("%s=%s", key, value), "user-profile")
	if category != "" {
		e.Tags = []string{category}
	}
	return m.recordEntry(e)
}

// RecordBelief records a Semantic-tier claim tagged "belief".
func (m *Manager) RecordBelief(claim string, confidence float32) (Entry, error) {
	e := NewEntry(Semantic, claim, "belief")
	e.Confidence = confidence
	e.Tags = []string{"belief"}
	return m.recordEntry(e)
}

// ConsumeFollowUps retires Reflective entries with matching ids whose tags
// contain "follow_up", moving them out of the pending set.
func (m *Manager) ConsumeFollowUps(ids []uuid.UUID) int {
	idSet := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	var consumed int
	removed := m.store.Retain(func(e Entry) bool {
		if e.Tier != Reflective || !hasTag(e.Tags, "follow_up") {
			return true
		}
		if _, match := idSet[e.ID]; match {
			consumed++
			return false
		}
		return true
	})
	if consumed > 0 {
		if m.index != nil {
			for _, e := range removed {
				m.onRemoved(e)
			}
		}
		_ = m.rewriteLogFromStore()
	}
	return consumed
}

// PendingFollowUp is one not-yet-consumed Reflective follow-up entry.
type PendingFollowUp struct {
	ID      uuid.UUID
	Content string
}

// PendingFollowUpIDs lists every Reflective follow-up entry not yet
// consumed.
func (m *Manager) PendingFollowUpIDs() []PendingFollowUp {
	var out []PendingFollowUp
	for _, e := range m.store.ByTier(Reflective) {
		if hasTag(e.Tags, "follow_up") {
			out = append(out, PendingFollowUp{ID: e.ID, Content: e.Content})
		}
	}
	return out
}

func hasTag(tags []string, target string) bool {
	for _, t := range tags {
		if t == target {
			return true
		}
	}
	return false
}

// UpdateValenceByIDShort sets the valence of the first entry whose id
// starts with prefix, clamped to [-1, 1].
func (m *Manager) UpdateValenceByIDShort(prefix string, v float32) bool {
	return m.store.UpdateValenceByIDShort(prefix, v)
}

// RetireByIDPrefixes removes every entry whose id string starts with any of
// the given prefixes and rewrites the event log to match. Used by agentic
// sleep to retire, rewrite, or consolidate Core entries the LLM named by
// short id prefix.
func (m *Manager) RetireByIDPrefixes(prefixes []string) (int, error) {
	if len(prefixes) == 0 {
		return 0, nil
	}
	removed := m.store.Retain(func(e Entry) bool {
		id := e.ID.String()
		for _, p := range prefixes {
			if strings.HasPrefix(id, strings.TrimSpace(p)) {
				return false
			}
		}
		return true
	})
	if len(removed) == 0 {
		return 0, nil
	}
	if m.index != nil {
		for _, e := range removed {
			m.onRemoved(e)
		}
	}
	if err := m.rewriteLogFromStore(); err != nil {
		return 0, err
	}
	return len(removed), nil
}

// FindByIDPrefix finds the single entry whose id starts with prefix.
func (m *Manager) FindByIDPrefix(prefix string) (Entry, bool) {
	return m.store.FindByIDPrefix(strings.TrimSpace(prefix))
}

// All returns every entry in the store.
func (m *Manager) All() []Entry { return m.store.All() }

// EntriesByTier returns every entry in a given tier.
func (m *Manager) EntriesByTier(tier Tier) []Entry { return m.store.ByTier(tier) }

// AllBeliefs returns every Semantic entry tagged "belief", the set the
// prompt builder ranks for its MY_BELIEFS section.
func (m *Manager) AllBeliefs() []Entry {
	var out []Entry
	for _, e := range m.store.ByTier(Semantic) {
		if hasTag(e.Tags, "belief") {
			out = append(out, e)
		}
	}
	return out
}

// UserNameFromCore reads the user's name from a UserProfile entry keyed
// "name=...", as recorded by the inline profile-signal extractor's
// "my name is X" heuristic.
func (m *Manager) UserNameFromCore() (string, bool) {
	for _, e := range m.store.ByTier(UserProfile) {
		if v, ok := strings.CutPrefix(e.Content, "name="); ok {
			return v, true
		}
	}
	return "", false
}

// Recent returns the n most recently created entries, across all tiers.
func (m *Manager) Recent(n int) []Entry {
	all := m.store.All()
	if n <= 0 || n >= len(all) {
		return sortedByRecency(all)
	}
	sorted := sortedByRecency(all)
	return sorted[:n]
}

func sortedByRecency(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Stats is the snapshot surfaced by the GetStatus IPC command.
type Stats struct {
	Total         int           `json:"total"`
	ByTier        map[Tier]int  `json:"by_tier"`
	CacheHits     uint64        `json:"cache_hits"`
	CacheMisses   uint64        `json:"cache_misses"`
}

// Stats computes entry counts per tier and cache hit/miss counters.
func (m *Manager) Stats() Stats {
	s := Stats{ByTier: make(map[Tier]int)}
	for _, e := range m.store.All() {
		s.Total++
		s.ByTier[e.Tier]++
	}
	if m.index != nil {
		s.CacheHits, s.CacheMisses = m.index.Stats()
	}
	return s
}

// WipeAll removes every entry from the store and rewrites the event log
// to empty.
func (m *Manager) WipeAll() error {
	return m.WipeTiers(AllTiers)
}

// WipeTiers removes every entry in the given tiers and rewrites the event
// log to reflect the surviving entries.
func (m *Manager) WipeTiers(tiers []Tier) error {
	wipeSet := make(map[Tier]struct{}, len(tiers))
	for _, t := range tiers {
		wipeSet[t] = struct{}{}
	}

	removed := m.store.Retain(func(e Entry) bool {
		_, wiped := wipeSet[e.Tier]
		return !wiped
	})
	if len(removed) == 0 {
		return nil
	}

	if m.index != nil {
		for _, e := range removed {
			m.onRemoved(e)
		}
	}

	if err := m.rewriteLogFromStore(); err != nil {
		return err
	}
	m.syncVault()
	return nil
}

// rewriteLogFromStore atomically overwrites the event log with one
// EventRecord per surviving entry, in store order, re-stamped with the
// current time. Used after wipe, dedup, compaction and the other purges
// that must persist; the in-memory forgetting pass does not call it.
func (m *Manager) rewriteLogFromStore() error {
	entries := m.store.All()
	recs := make([]EventRecord, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, NewEventRecord(e))
	}
	if err := m.log.Overwrite(recs); err != nil {
		return fmt.Errorf("memtier: rewriting event log: %w", err)
	}
	return nil
}

// RunForgettingPass deletes Episodic entries older than days with
// confidence below minConfidence, in memory only (the caller decides
// whether to also compact the log).
func (m *Manager) RunForgettingPass(days int, minConfidence float32) int {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	removed := m.store.Retain(func(e Entry) bool {
		if e.Tier != Episodic {
			return true
		}
		return !(e.CreatedAt.Before(cutoff) && e.Confidence < minConfidence)
	})
	if m.index != nil {
		for _, e := range removed {
			m.onRemoved(e)
		}
	}
	return len(removed)
}

// DeduplicateByContent removes every entry except the newest per
// (tier, normalized content) group, and rewrites the event log to match.
func (m *Manager) DeduplicateByContent() (int, error) {
	dupIDs := m.FindContentDuplicates()
	if len(dupIDs) == 0 {
		return 0, nil
	}
	dupSet := make(map[uuid.UUID]struct{}, len(dupIDs))
	for _, id := range dupIDs {
		dupSet[id] = struct{}{}
	}

	removed := m.store.Retain(func(e Entry) bool {
		_, dup := dupSet[e.ID]
		return !dup
	})
	if m.index != nil {
		for _, e := range removed {
			m.onRemoved(e)
		}
	}
	if err := m.rewriteLogFromStore(); err != nil {
		return 0, err
	}
	return len(removed), nil
}

// FindContentDuplicates groups entries by (tier, normalized content) and
// returns the ids of every entry except the newest per group.
func (m *Manager) FindContentDuplicates() []uuid.UUID {
	groups := make(map[string][]Entry)
	for _, e := range m.store.All() {
		key := ContentKey(e.Tier, e.Content)
		groups[key] = append(groups[key], e)
	}

	var dupIDs []uuid.UUID
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		newest := group[0]
		for _, e := range group[1:] {
			if e.CreatedAt.After(newest.CreatedAt) {
				newest = e
			}
		}
		for _, e := range group {
			if e.ID != newest.ID {
				dupIDs = append(dupIDs, e.ID)
			}
		}
	}
	return dupIDs
}

// CompactEpisodic purges Episodic entries older than days regardless of
// confidence, and rewrites the event log.
func (m *Manager) CompactEpisodic(days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	removed := m.store.Retain(func(e Entry) bool {
		if e.Tier != Episodic {
			return true
		}
		return !e.CreatedAt.Before(cutoff)
	})
	if m.index != nil {
		for _, e := range removed {
			m.onRemoved(e)
		}
	}
	if err := m.rewriteLogFromStore(); err != nil {
		return 0, err
	}
	return len(removed), nil
}

// lexShortlistThreshold is the non-Core entry count above which the
// lexical index is consulted to shortlist candidates before the exact
// ranker scores them, rather than scanning every entry.
const lexShortlistThreshold = 200

// shortlist narrows candidates to the lexical index's best matches once
// the store is large enough that a brute-force scan is wasteful. Below
// the threshold, or with no lexical index configured, every candidate is
// scored directly.
func (m *Manager) shortlist(query string, candidates []Entry) []Entry {
	if m.lex == nil || query == "" || len(candidates) <= lexShortlistThreshold {
		return candidates
	}
	ids, err := m.lex.Shortlist(query, lexShortlistThreshold)
	if err != nil || len(ids) == 0 {
		return candidates
	}
	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := make([]Entry, 0, len(ids))
	for _, e := range candidates {
		if _, ok := wanted[e.ID]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ContextForPromptRankedWithEmbed computes ranked retrieval context for a
// query, prepending a synthetic identity summary item when the vault
// exposes one.
func (m *Manager) ContextForPromptRankedWithEmbed(query string, limit int, queryEmbedding []float32) []RankedContext {
	core := m.store.ByTier(Core)
	var nonCore []Entry
	for _, tier := range AllTiers {
		if tier == Core {
			continue
		}
		nonCore = append(nonCore, m.store.ByTier(tier)...)
	}
	nonCore = m.shortlist(query, nonCore)

	ranked := Rank(nonCore, core, query, limit, queryEmbedding)

	if m.vault != nil {
		if summary, ok := m.vault.IdentitySummary(); ok && summary != "" {
			synthetic := SyntheticIdentityContext(summary)
			ranked = append([]RankedContext{synthetic}, ranked...)
			if limit > 0 && len(ranked) > limit {
				ranked = ranked[:limit]
			}
		}
	}
	return ranked
}

// RelationalStateBlock builds the compressed USER/MY_BELIEFS/OUR_DYNAMIC
// block from UserProfile and Reflective entries (spec §4.6). Returns ""
// when nothing routes into any bucket.
func (m *Manager) RelationalStateBlock() string {
	var user, beliefs, dynamic []string

	route := func(e Entry) {
		switch {
		case hasAnyTag(e.Tags, "user_fact", "preference"):
			user = append(user, e.Content)
		case hasAnyTag(e.Tags, "agent_belief", "perspective", "opinion"):
			beliefs = append(beliefs, e.Content)
		case hasAnyTag(e.Tags, "relationship", "dynamic"):
			dynamic = append(dynamic, e.Content)
		case matchesSource(e.Source, "critic", "belief"):
			beliefs = append(beliefs, e.Content)
		case matchesSource(e.Source, "psychologist") || e.Source == "sleep:relationship":
			dynamic = append(dynamic, e.Content)
		default:
			routeByKeyword(e.Content, &user, &beliefs, &dynamic)
		}
	}

	for _, e := range m.store.ByTier(UserProfile) {
		route(e)
	}
	for _, e := range m.store.ByTier(Reflective) {
		route(e)
	}

	var lines []string
	if len(user) > 0 {
		lines = append(lines, "[USER: "+strings.Join(user, "; ")+"]")
	}
	if len(beliefs) > 0 {
		lines = append(lines, "[MY_BELIEFS: "+strings.Join(beliefs, "; ")+"]")
	}
	if len(dynamic) > 0 {
		lines = append(lines, "[OUR_DYNAMIC: "+strings.Join(dynamic, "; ")+"]")
	}
	return strings.Join(lines, "\n")
}

func hasAnyTag(tags []string, targets ...string) bool {
	for _, t := range tags {
		for _, target := range targets {
			if t == target {
				return true
			}
		}
	}
	return false
}

func matchesSource(source string, needles ...string) bool {
	lower := strings.ToLower(source)
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// routeByKeyword is the legacy, case-insensitive content-keyword fallback
// named in spec §4.6 for entries that carry neither a recognized tag nor
// a recognized source.
func routeByKeyword(content string, user, beliefs, dynamic *[]string) {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "i believe") || strings.Contains(lower, "i think"):
		*beliefs = append(*beliefs, content)
	case strings.Contains(lower, "our relationship") || strings.Contains(lower, "we work well"):
		*dynamic = append(*dynamic, content)
	case strings.Contains(lower, "user prefers") || strings.Contains(lower, "user likes"):
		*user = append(*user, content)
	}
}

func (m *Manager) syncVault() {
	if m.vault == nil {
		return
	}
	_ = m.vault.Sync(m.store.All())
}

// QuarantineError is returned when the firewall rejects a proposed Core
// write.
type QuarantineError struct {
	Reason string
}

func (e *QuarantineError) Error() string {
	return "memtier: quarantined: " + e.Reason
}
