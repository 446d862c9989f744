package memtier

import (
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"
)

// lexDocument is the document shape bleve indexes — just enough to shortlist
// candidates before the exact ranker (ranker.go) scores them. Bleve's BM25
// relevance is deliberately NOT used as the lexical term in the final score:
// spec §4.6 fixes that formula to a reproducible token-overlap ratio, so
// this index exists purely to avoid scanning every entry in the store on
// every retrieval call.
type lexDocument struct {
	Content   string    `json:"content"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

// LexIndex is the lexical shortlist accelerator: a bleve full-text index
// over entry content, queried to produce a candidate set that the ranker
// then scores exactly.
type LexIndex struct {
	index bleve.Index
}

// OpenLexIndex opens or creates a bleve index at path.
func OpenLexIndex(path string) (*LexIndex, error) {
	index, err := bleve.Open(path)
	if err == nil {
		return &LexIndex{index: index}, nil
	}

	index, err = bleve.New(path, buildLexMapping())
	if err != nil {
		return nil, fmt.Errorf("memtier: creating lexical index: %w", err)
	}
	return &LexIndex{index: index}, nil
}

func buildLexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("content", contentField)

	tierField := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("tier", tierField)

	dateField := bleve.NewDateTimeFieldMapping()
	docMapping.AddFieldMappingsAt("created_at", dateField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Close releases the underlying index.
func (l *LexIndex) Close() error {
	return l.index.Close()
}

// Index adds or replaces an entry's lexical document.
func (l *LexIndex) Index(e Entry) error {
	doc := lexDocument{Content: e.Content, Tier: e.Tier.String(), CreatedAt: e.CreatedAt}
	if err := l.index.Index(e.ID.String(), doc); err != nil {
		return fmt.Errorf("memtier: indexing lexical document: %w", err)
	}
	return nil
}

// Delete removes an entry's lexical document.
func (l *LexIndex) Delete(id uuid.UUID) error {
	if err := l.index.Delete(id.String()); err != nil {
		return fmt.Errorf("memtier: deleting lexical document: %w", err)
	}
	return nil
}

// Shortlist returns up to limit entry ids whose content best matches query,
// across any tier, ordered by bleve's relevance score. The ranker is the
// authority on final ordering; this is a pre-filter only.
func (l *LexIndex) Shortlist(query string, limit int) ([]uuid.UUID, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	searchReq := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	searchReq.Size = limit

	result, err := l.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("memtier: lexical shortlist search: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
