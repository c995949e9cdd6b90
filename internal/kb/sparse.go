package kb

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
)

const sparseAnalyzerName = "kbterms"

// SparseIndex is the lexical half of hybrid search: an in-memory bleve
// index over chunk text with deliberately simple analysis (lowercase +
// whitespace split, no stemming or stop words). The index is rebuilt
// from scratch whenever the chunk set changes; rebuilding is the only
// supported update operation.
type SparseIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

type sparseDoc struct {
	Text string `json:"text"`
}

func NewSparseIndex() *SparseIndex {
	return &SparseIndex{}
}

// Build replaces the whole index with one built over chunks. Building
// with zero chunks leaves the index unbuilt, so Search returns empty.
func (s *SparseIndex) Build(chunks []*Chunk) error {
	if len(chunks) == 0 {
		s.swap(nil)
		return nil
	}

	m, err := buildSparseMapping()
	if err != nil {
		return fmt.Errorf("build sparse mapping: %w", err)
	}
	index, err := bleve.NewMemOnly(m)
	if err != nil {
		return fmt.Errorf("create sparse index: %w", err)
	}

	batch := index.NewBatch()
	for _, chunk := range chunks {
		if err := batch.Index(chunk.ID, sparseDoc{Text: chunk.Text}); err != nil {
			_ = index.Close()
			return fmt.Errorf("index chunk %s: %w", chunk.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return fmt.Errorf("commit sparse batch: %w", err)
	}

	s.swap(index)
	return nil
}

// Search returns up to topK chunk IDs ranked by lexical relevance,
// descending. An unbuilt index returns an empty result, not an error.
func (s *SparseIndex) Search(query string, topK int) ([]ScoredID, error) {
	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()

	if index == nil || topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("text")
	req := bleve.NewSearchRequestOptions(mq, topK, 0, false)
	res, err := index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}

	hits := make([]ScoredID, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, ScoredID{ID: hit.ID, Score: hit.Score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

// Size returns the number of indexed chunks.
func (s *SparseIndex) Size() uint64 {
	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()
	if index == nil {
		return 0
	}
	n, err := index.DocCount()
	if err != nil {
		return 0
	}
	return n
}

func (s *SparseIndex) swap(index bleve.Index) {
	s.mu.Lock()
	old := s.index
	s.index = index
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func buildSparseMapping() (mapping.IndexMapping, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(sparseAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}
	m.DefaultAnalyzer = sparseAnalyzerName

	textField := bleve.NewTextFieldMapping()
	textField.Store = false
	textField.Index = true
	textField.Analyzer = sparseAnalyzerName

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("text", textField)
	m.DefaultMapping = docMapping
	return m, nil
}
