package kb

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
)

const (
	// NoMatchText is returned when nothing relevant is found.
	NoMatchText = "No relevant information found in the knowledge base."

	contextSeparator = "\n\n---\n\n"

	defaultTopK        = 3
	maxQueryVariants   = 3
	imageResultLimit   = 2
	extraMergedResults = 2
)

// RetrieveOptions tunes a single retrieval call.
type RetrieveOptions struct {
	TopK          int
	IncludeImages bool
}

// Retriever answers free-text queries against the store's current
// snapshot: query expansion, hybrid sparse+dense search fused per
// variant, max-merge across variants, then parent-context assembly.
// It is stateless per query; many queries may run concurrently against
// the shared read-only snapshot.
type Retriever struct {
	store    *Store
	embedder Embedder
	expander Expander // optional
	rrfK     int
}

// NewRetriever wires a retrieval pipeline. expander may be nil to
// disable query expansion; rrfK <= 0 picks the default constant.
func NewRetriever(store *Store, embedder Embedder, expander Expander, rrfK int) *Retriever {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}
	return &Retriever{store: store, embedder: embedder, expander: expander, rrfK: rrfK}
}

// Retrieve runs the full retrieval pipeline for one query. Degraded
// dependencies (expansion, embedding, missing blobs) never produce an
// error; the only error is malformed input.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return QueryResult{}, fmt.Errorf("query must not be empty")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	queries := append([]string{query}, r.expandQuery(ctx, query)...)
	snapshot := r.store.Snapshot()

	merged := make(map[string]float64)
	var confidence float64
	var queryEmbedding []float32

	for i, q := range queries {
		embedding, err := r.embedder.Embed(ctx, q)
		if err != nil {
			log.Printf("kb: embed query failed, substituting zero vector: %v", err)
			embedding = make([]float32, r.embedder.Dimensions())
		}
		if i == 0 {
			queryEmbedding = embedding
		}

		dense := SearchDense(embedding, snapshot.Embeddings, topK*2)
		sparse, err := r.store.Sparse().Search(q, topK*2)
		if err != nil {
			log.Printf("kb: %v", err)
			sparse = nil
		}

		fused := FuseRRF(dense, sparse, r.rrfK)
		if len(fused) > topK {
			fused = fused[:topK]
		}
		if i == 0 && len(fused) > 0 {
			confidence = fused[0].Score
		}
		// Max across variants, not sum: a chunk surfaced strongly by
		// any single phrasing should not be diluted by phrasing count.
		for _, hit := range fused {
			if hit.Score > merged[hit.ID] {
				merged[hit.ID] = hit.Score
			}
		}
	}

	final := rankMerged(merged, topK+extraMergedResults)
	contexts, sources := r.assembleContexts(snapshot, final)
	if len(contexts) == 0 {
		return QueryResult{Text: NoMatchText, Sources: []string{}, Images: []string{}}, nil
	}

	images := []string{}
	if opts.IncludeImages {
		images = r.searchImages(snapshot, queryEmbedding)
	}

	return QueryResult{
		Text:       strings.Join(contexts, contextSeparator),
		Sources:    sources,
		Images:     images,
		Confidence: confidence,
	}, nil
}

// expandQuery asks the external expander for up to three lexical
// variants, degrading to none on failure.
func (r *Retriever) expandQuery(ctx context.Context, query string) []string {
	if r.expander == nil {
		return nil
	}
	variants, err := r.expander.ExpandQuery(ctx, query)
	if err != nil {
		log.Printf("kb: query expansion failed: %v", err)
		return nil
	}
	out := make([]string, 0, maxQueryVariants)
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == maxQueryVariants {
			break
		}
	}
	return out
}

// assembleContexts resolves each selected chunk to its parent's full
// text (falling back to the chunk's own text when the blob is missing),
// prefixed with source filename, pages and document summary.
func (r *Retriever) assembleContexts(snapshot *Index, hits []ScoredID) ([]string, []string) {
	var contexts []string
	sourceSet := make(map[string]struct{})

	for _, hit := range hits {
		chunk, ok := snapshot.Chunks[hit.ID]
		if !ok {
			continue
		}
		parentID := chunk.ParentID
		if parentID == "" {
			parentID = chunk.ID
		}

		text, err := r.store.ReadParentText(parentID)
		if err != nil {
			text = chunk.Text
		}

		pages := chunk.Pages
		if len(pages) == 0 {
			if parent, ok := snapshot.Chunks[parentID]; ok {
				pages = parent.Pages
			}
		}

		filename := chunk.Filename
		summary := ""
		if doc, ok := snapshot.Documents[chunk.DocID]; ok {
			filename = doc.Filename
			summary = doc.Summary
		}

		var b strings.Builder
		b.WriteString("[")
		b.WriteString(filename)
		if len(pages) > 0 {
			b.WriteString(" (Pages: ")
			b.WriteString(joinPages(pages, ", "))
			b.WriteString(")")
		}
		b.WriteString("]\n")
		if summary != "" {
			b.WriteString("Summary: ")
			b.WriteString(summary)
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		contexts = append(contexts, b.String())

		if len(pages) > 0 {
			sourceSet[fmt.Sprintf("%s (p.%s)", filename, joinPages(pages, ","))] = struct{}{}
		} else {
			sourceSet[filename] = struct{}{}
		}
	}

	sources := make([]string, 0, len(sourceSet))
	for s := range sourceSet {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return contexts, sources
}

// searchImages runs the independent dense pass over image caption
// embeddings and returns the best blob paths.
func (r *Retriever) searchImages(snapshot *Index, queryEmbedding []float32) []string {
	embeddings := make(map[string][]float32)
	for id, img := range snapshot.Images {
		if len(img.Embedding) > 0 {
			embeddings[id] = img.Embedding
		}
	}

	paths := []string{}
	for _, hit := range SearchDense(queryEmbedding, embeddings, imageResultLimit) {
		if img, ok := snapshot.Images[hit.ID]; ok && img.BlobPath != "" {
			paths = append(paths, img.BlobPath)
		}
	}
	return paths
}

func rankMerged(merged map[string]float64, limit int) []ScoredID {
	ranked := make([]ScoredID, 0, len(merged))
	for id, score := range merged {
		ranked = append(ranked, ScoredID{ID: id, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score == ranked[j].Score {
			return ranked[i].ID < ranked[j].ID
		}
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func joinPages(pages []int, sep string) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, sep)
}
