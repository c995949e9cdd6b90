package kb

import (
	"context"
	"fmt"
	"time"
)

// ElementKind classifies a content element produced by document extraction.
type ElementKind string

const (
	ElementText    ElementKind = "text"
	ElementTable   ElementKind = "table"
	ElementImage   ElementKind = "image"
	ElementChart   ElementKind = "chart"
	ElementFormula ElementKind = "formula"
)

// Valid reports whether k is one of the known element kinds.
func (k ElementKind) Valid() bool {
	switch k {
	case ElementText, ElementTable, ElementImage, ElementChart, ElementFormula:
		return true
	}
	return false
}

// Textual reports whether the element's text participates in chunking.
func (k ElementKind) Textual() bool {
	return k == ElementText || k == ElementTable || k == ElementFormula
}

// ContentElement is one typed piece of extracted document content.
// Image and chart elements carry the decoded binary payload in Data;
// for those kinds Text holds the caption.
type ContentElement struct {
	Kind  ElementKind
	Text  string
	Page  int // 1-based, 0 when unknown
	Data  []byte
	Attrs map[string]string
}

// ExtractSummary aggregates what an extractor found in one document.
type ExtractSummary struct {
	HasText     bool
	HasTables   bool
	HasImages   bool
	HasCharts   bool
	HasFormulas bool
	PageCount   int
	// ElementCounts counts raw extractor element types for diagnostics.
	ElementCounts map[string]int
}

// Extractor turns a raw file into typed content elements.
// Implementations must degrade internally (e.g. fall back to plain text)
// before returning an error; a returned error fails only that document.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]ContentElement, ExtractSummary, error)
}

// Embedder maps text to fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Expander generates short lexical variants of a query. Failures are
// treated as zero variants by callers, never as fatal.
type Expander interface {
	ExpandQuery(ctx context.Context, query string) ([]string, error)
}

// Classifier decides whether an image is a chart/graph/diagram. Only
// consulted for images whose caption has no unambiguous chart keyword.
type Classifier interface {
	IsChart(ctx context.Context, image []byte, captionHint string) (bool, error)
}

// Chunk is one window of document text. Parents carry page attribution
// and have their full text persisted as a blob; only children are
// embedded for dense search.
type Chunk struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	Filename  string    `json:"filename"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	IsParent  bool      `json:"is_parent"`
	ParentID  string    `json:"parent_id,omitempty"`
	Pages     []int     `json:"pages,omitempty"`
}

// Image is an extracted image with its caption embedding. An empty
// caption means an empty embedding, which excludes the image from
// dense image search.
type Image struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	Filename  string    `json:"filename"`
	Caption   string    `json:"caption"`
	Embedding []float32 `json:"embedding,omitempty"`
	Page      int       `json:"page,omitempty"`
	BlobPath  string    `json:"blob_path"`
	IsChart   bool      `json:"is_chart"`
}

// Document is the per-file ingestion record.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Summary     string    `json:"summary"`
	HasText     bool      `json:"has_text"`
	HasTables   bool      `json:"has_tables"`
	HasImages   bool      `json:"has_images"`
	HasCharts   bool      `json:"has_charts"`
	ChunkIDs    []string  `json:"chunk_ids"`
	ImageIDs    []string  `json:"image_ids"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Index is the aggregate root persisted by the Store. Embeddings
// duplicates each child chunk's vector for dense-search convenience.
type Index struct {
	Documents  map[string]*Document `json:"documents"`
	Chunks     map[string]*Chunk    `json:"chunks"`
	Images     map[string]*Image    `json:"images"`
	Embeddings map[string][]float32 `json:"embeddings"`
}

// NewIndex returns an empty index with all maps allocated.
func NewIndex() *Index {
	return &Index{
		Documents:  make(map[string]*Document),
		Chunks:     make(map[string]*Chunk),
		Images:     make(map[string]*Image),
		Embeddings: make(map[string][]float32),
	}
}

// ensureMaps allocates any map left nil by JSON decoding.
func (ix *Index) ensureMaps() {
	if ix.Documents == nil {
		ix.Documents = make(map[string]*Document)
	}
	if ix.Chunks == nil {
		ix.Chunks = make(map[string]*Chunk)
	}
	if ix.Images == nil {
		ix.Images = make(map[string]*Image)
	}
	if ix.Embeddings == nil {
		ix.Embeddings = make(map[string][]float32)
	}
}

// Validate checks the structural invariants of a loaded index so that a
// malformed record fails at load instead of deep inside retrieval.
func (ix *Index) Validate() error {
	for id, c := range ix.Chunks {
		if c == nil {
			return fmt.Errorf("chunk %q is null", id)
		}
		if c.ID != id {
			return fmt.Errorf("chunk key %q does not match chunk id %q", id, c.ID)
		}
		if c.IsParent {
			if c.ParentID != "" {
				return fmt.Errorf("parent chunk %q has parent_id %q", id, c.ParentID)
			}
			continue
		}
		if c.ParentID == "" {
			return fmt.Errorf("child chunk %q has no parent_id", id)
		}
		parent, ok := ix.Chunks[c.ParentID]
		if !ok {
			return fmt.Errorf("child chunk %q references missing parent %q", id, c.ParentID)
		}
		if !parent.IsParent {
			return fmt.Errorf("child chunk %q references non-parent chunk %q", id, c.ParentID)
		}
		if parent.DocID != c.DocID {
			return fmt.Errorf("child chunk %q (doc %q) references parent %q of doc %q",
				id, c.DocID, c.ParentID, parent.DocID)
		}
	}
	for id := range ix.Embeddings {
		c, ok := ix.Chunks[id]
		if !ok {
			return fmt.Errorf("embedding %q has no matching chunk", id)
		}
		if c.IsParent {
			return fmt.Errorf("embedding %q belongs to a parent chunk", id)
		}
	}
	for id, img := range ix.Images {
		if img == nil {
			return fmt.Errorf("image %q is null", id)
		}
		if img.ID != id {
			return fmt.Errorf("image key %q does not match image id %q", id, img.ID)
		}
	}
	return nil
}

// Clone returns a deep copy. Ingestion mutates a clone and swaps it in
// only at persist, so in-progress mutation stays invisible to readers.
func (ix *Index) Clone() *Index {
	out := NewIndex()
	for id, doc := range ix.Documents {
		d := *doc
		d.ChunkIDs = append([]string(nil), doc.ChunkIDs...)
		d.ImageIDs = append([]string(nil), doc.ImageIDs...)
		out.Documents[id] = &d
	}
	for id, chunk := range ix.Chunks {
		c := *chunk
		c.Embedding = append([]float32(nil), chunk.Embedding...)
		c.Pages = append([]int(nil), chunk.Pages...)
		out.Chunks[id] = &c
	}
	for id, img := range ix.Images {
		im := *img
		im.Embedding = append([]float32(nil), img.Embedding...)
		out.Images[id] = &im
	}
	for id, vec := range ix.Embeddings {
		out.Embeddings[id] = append([]float32(nil), vec...)
	}
	return out
}

// ScoredID is one ranked hit from sparse, dense or fused search.
type ScoredID struct {
	ID    string
	Score float64
}

// QueryResult is the payload returned to any retrieval caller.
type QueryResult struct {
	Text       string   `json:"text"`
	Sources    []string `json:"sources"`
	Images     []string `json:"images"`
	Confidence float64  `json:"confidence"`
}
