package memtier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	entriesBucket   = []byte("entries")
	tierIndexBucket = []byte("tier_index")
)

// indexedMeta is the metadata persisted per entry in the entries bucket —
// everything needed to reconstruct a Ranked candidate without holding the
// full Store in memory, mirrored against the authoritative Store/EventLog.
type indexedMeta struct {
	ID         uuid.UUID `json:"id"`
	Tier       Tier      `json:"tier"`
	Source     string    `json:"source"`
	Confidence float32   `json:"confidence"`
	Valence    float32   `json:"valence"`
	CreatedAt  time.Time `json:"created_at"`
	Tags       []string  `json:"tags,omitempty"`
}

// Index is the secondary index (C3): a persistent key-value store backed
// by bbolt, fronted by a small in-memory LRU cache for hot lookups. It
// never holds authoritative content — that lives in the Store and the
// EventLog — but lets the daemon answer "what ids belong to tier X" and
// "what's entry Y's metadata" without scanning the full event log on
// every request.
type Index struct {
	db    *bolt.DB
	cache *lru
}

// OpenIndex opens (creating if needed) a bbolt-backed secondary index at
// path, with a hot cache holding up to cacheCapacity entries.
func OpenIndex(path string, cacheCapacity int) (*Index, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("memtier: opening secondary index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(tierIndexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("memtier: preparing secondary index buckets: %w", err)
	}

	return &Index{db: db, cache: newLRU(cacheCapacity)}, nil
}

// Close releases the underlying bbolt database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Put writes an entry's metadata into the entries bucket and appends its
// id to its tier's id list, invalidating any stale cache entry.
func (idx *Index) Put(e Entry) error {
	meta := indexedMeta{
		ID:         e.ID,
		Tier:       e.Tier,
		Source:     e.Source,
		Confidence: e.Confidence,
		Valence:    e.Valence,
		CreatedAt:  e.CreatedAt,
		Tags:       e.Tags,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("memtier: marshaling index entry: %w", err)
	}

	err = idx.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(entriesBucket).Put(idKey(e.ID), data); err != nil {
			return err
		}
		return appendToTierList(tx, e.Tier, e.ID)
	})
	if err != nil {
		return fmt.Errorf("memtier: writing secondary index: %w", err)
	}

	idx.cache.put(e.ID, meta)
	return nil
}

// Get fetches an entry's metadata, checking the hot cache first.
func (idx *Index) Get(id uuid.UUID) (indexedMeta, bool, error) {
	if meta, ok := idx.cache.get(id); ok {
		return meta, true, nil
	}

	var meta indexedMeta
	var found bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(entriesBucket).Get(idKey(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &meta)
	})
	if err != nil {
		return indexedMeta{}, false, fmt.Errorf("memtier: reading secondary index: %w", err)
	}
	if found {
		idx.cache.put(id, meta)
	}
	return meta, found, nil
}

// IDsForTier returns every entry id recorded against a tier.
func (idx *Index) IDsForTier(tier Tier) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := idx.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(tierIndexBucket).Get([]byte(tier.String()))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &ids)
	})
	if err != nil {
		return nil, fmt.Errorf("memtier: reading tier index: %w", err)
	}
	return ids, nil
}

// Remove deletes an entry's metadata and its tier-list membership.
func (idx *Index) Remove(id uuid.UUID, tier Tier) error {
	err := idx.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(entriesBucket).Delete(idKey(id)); err != nil {
			return err
		}
		return removeFromTierList(tx, tier, id)
	})
	if err != nil {
		return fmt.Errorf("memtier: removing from secondary index: %w", err)
	}
	idx.cache.remove(id)
	return nil
}

// Stats reports the hot cache's hit/miss counters, read by Manager.Stats
// into CacheHits/CacheMisses. The GetStatus IPC reply does not carry them.
func (idx *Index) Stats() (hits, misses uint64) {
	return idx.cache.hits, idx.cache.misses
}

func idKey(id uuid.UUID) []byte {
	b := id
	return b[:]
}

func appendToTierList(tx *bolt.Tx, tier Tier, id uuid.UUID) error {
	b := tx.Bucket(tierIndexBucket)
	key := []byte(tier.String())
	var ids []uuid.UUID
	if data := b.Get(key); data != nil {
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func removeFromTierList(tx *bolt.Tx, tier Tier, id uuid.UUID) error {
	b := tx.Bucket(tierIndexBucket)
	key := []byte(tier.String())
	data := b.Get(key)
	if data == nil {
		return nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	newData, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return b.Put(key, newData)
}
