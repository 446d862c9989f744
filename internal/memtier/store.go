package memtier

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store is the in-memory entry store (C2): an ordered slice of entries
// plus id and content-dedup indexes. It holds the full working set of
// memory entries and is rebuilt from the event log at startup.
//
// Invariants:
//   - every entry's id is unique (enforced by idIndex)
//   - (tier, normalized content) is unique (enforced by contentIndex)
type Store struct {
	mu           sync.RWMutex
	entries      []Entry
	idIndex      map[uuid.UUID]int // id -> index into entries
	contentIndex map[string]uuid.UUID
}

// NewStore returns an empty entry store.
func NewStore() *Store {
	return &Store{
		idIndex:      make(map[uuid.UUID]int),
		contentIndex: make(map[string]uuid.UUID),
	}
}

// Insert adds an entry to the store. If an entry already exists with the
// same (tier, normalized content), Insert returns the existing entry's id
// and false, without modifying the store — this is the content-level
// dedup invariant.
func (s *Store) Insert(e Entry) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ContentKey(e.Tier, e.Content)
	if existing, ok := s.contentIndex[key]; ok {
		return existing, false
	}

	s.entries = append(s.entries, e)
	s.idIndex[e.ID] = len(s.entries) - 1
	s.contentIndex[key] = e.ID
	return e.ID, true
}

// Get returns the entry with the given id.
func (s *Store) Get(id uuid.UUID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.idIndex[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[idx], true
}

// All returns a copy of every entry currently held. Callers must not rely
// on ordering beyond insertion order.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ByTier returns a copy of every entry in the given tier.
func (s *Store) ByTier(tier Tier) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Tier == tier {
			out = append(out, e)
		}
	}
	return out
}

// Remove deletes the entry with the given id, if present, and reports
// whether anything was removed.
func (s *Store) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.idIndex[id]
	if !ok {
		return false
	}
	e := s.entries[idx]
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	delete(s.idIndex, id)
	delete(s.contentIndex, ContentKey(e.Tier, e.Content))
	for i := idx; i < len(s.entries); i++ {
		s.idIndex[s.entries[i].ID] = i
	}
	return true
}

// Retain keeps only entries for which keep returns true, removing the
// rest. Used by forgetting passes and compaction. Returns the removed
// entries so callers can record tombstone events.
func (s *Store) Retain(keep func(Entry) bool) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept, removed []Entry
	for _, e := range s.entries {
		if keep(e) {
			kept = append(kept, e)
		} else {
			removed = append(removed, e)
		}
	}
	s.entries = kept
	s.idIndex = make(map[uuid.UUID]int, len(kept))
	s.contentIndex = make(map[string]uuid.UUID, len(kept))
	for i, e := range s.entries {
		s.idIndex[e.ID] = i
		s.contentIndex[ContentKey(e.Tier, e.Content)] = e.ID
	}
	return removed
}

// FindContentDuplicate reports the id of an existing entry with the same
// (tier, normalized content) as the given candidate, if any.
func (s *Store) FindContentDuplicate(tier Tier, content string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.contentIndex[ContentKey(tier, content)]
	return id, ok
}

// UpdateValenceByID adjusts an entry's valence in place, used by the sleep
// engine and relational-state tracking. Reports whether the id existed.
func (s *Store) UpdateValenceByID(id uuid.UUID, valence float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.idIndex[id]
	if !ok {
		return false
	}
	s.entries[idx].Valence = valence
	return true
}

// UpdateValenceByIDShort sets the valence of the first entry (in
// insertion order) whose id string starts with prefix, clamping v to
// [-1, 1]. Reports whether any entry matched.
func (s *Store) UpdateValenceByIDShort(prefix string, v float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	for i, e := range s.entries {
		if strings.HasPrefix(e.ID.String(), prefix) {
			s.entries[i].Valence = v
			return true
		}
	}
	return false
}

// FindByIDPrefix returns the first entry (in insertion order) whose id
// string starts with prefix.
func (s *Store) FindByIDPrefix(prefix string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if strings.HasPrefix(e.ID.String(), prefix) {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Rebuild replaces the store contents wholesale, used when replaying the
// event log at startup or after a compaction rewrite. No dedup checks are
// applied: the caller is responsible for feeding it a consistent set.
func (s *Store) Rebuild(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]Entry(nil), entries...)
	s.idIndex = make(map[uuid.UUID]int, len(entries))
	s.contentIndex = make(map[string]uuid.UUID, len(entries))
	for i, e := range s.entries {
		s.idIndex[e.ID] = i
		s.contentIndex[ContentKey(e.Tier, e.Content)] = e.ID
	}
}
