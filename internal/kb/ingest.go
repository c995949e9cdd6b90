package kb

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultEmbedBatchSize = 20

// chart keywords that make a caption unambiguous, skipping the classifier.
var chartCaptionKeywords = []string{"chart", "graph", "figure", "plot"}

// PipelineConfig tunes the ingestion pipeline. Zero values pick
// defaults; Classifier and Progress are optional.
type PipelineConfig struct {
	BatchSize  int
	Chunker    *Chunker
	Classifier Classifier
	Progress   ProgressReporter
	Exclude    []string
}

// Pipeline drives extraction, chunking, embedding and the store to turn
// documents into searchable chunks and images. Ingestion is a batch
// operation: a single bad file is logged and skipped, never aborting
// the pass.
type Pipeline struct {
	store      *Store
	extractor  Extractor
	embedder   Embedder
	chunker    *Chunker
	classifier Classifier
	progress   ProgressReporter
	filter     *ScanFilter
	batchSize  int
}

// NewPipeline wires an ingestion pipeline around an explicit store,
// extractor and embedder.
func NewPipeline(store *Store, extractor Extractor, embedder Embedder, cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		store:      store,
		extractor:  extractor,
		embedder:   embedder,
		chunker:    cfg.Chunker,
		classifier: cfg.Classifier,
		progress:   cfg.Progress,
		filter:     NewScanFilter(cfg.Exclude),
		batchSize:  cfg.BatchSize,
	}
	if p.chunker == nil {
		p.chunker = NewChunker(0, 0, 0)
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultEmbedBatchSize
	}
	return p
}

// IngestAll ingests every eligible file under dataDir, then persists
// the updated index in one atomic pass. It returns the number of files
// ingested (or skipped as already present).
func (p *Pipeline) IngestAll(ctx context.Context, dataDir string, force bool) (int, error) {
	files, err := ListDocuments(dataDir, p.filter)
	if err != nil {
		return 0, fmt.Errorf("scan data directory: %w", err)
	}

	work := p.store.CloneIndex()
	if p.progress != nil {
		p.progress.Start(len(files))
	}

	processed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := p.ingestFile(ctx, work, path, force); err != nil {
			log.Printf("kb: ingest %s failed: %v", filepath.Base(path), err)
		} else {
			processed++
		}
		if p.progress != nil {
			p.progress.Increment()
		}
	}
	if p.progress != nil {
		p.progress.Finish()
	}

	if err := p.store.Persist(work); err != nil {
		return processed, fmt.Errorf("persist index: %w", err)
	}
	return processed, nil
}

// Ingest ingests a single document and persists the result. Already
// present documents are a no-op unless force is set.
func (p *Pipeline) Ingest(ctx context.Context, path string, force bool) error {
	work := p.store.CloneIndex()
	if err := p.ingestFile(ctx, work, path, force); err != nil {
		return err
	}
	if err := p.store.Persist(work); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

func (p *Pipeline) ingestFile(ctx context.Context, work *Index, path string, force bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	docID := p.store.Fingerprint(info.Name(), info.ModTime())
	if _, ok := work.Documents[docID]; ok {
		if !force {
			return nil
		}
		p.removeDocument(work, docID)
	}

	elements, summary, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	chunks := p.chunker.Chunk(elements, docID, info.Name())
	p.embedChildren(ctx, chunks, work)

	doc := &Document{
		ID:          docID,
		Filename:    info.Name(),
		Summary:     fmt.Sprintf("Parsed %d content elements", len(elements)),
		HasText:     summary.HasText,
		HasTables:   summary.HasTables,
		HasImages:   summary.HasImages,
		HasCharts:   summary.HasCharts,
		ProcessedAt: time.Now().UTC(),
	}

	for _, chunk := range chunks {
		work.Chunks[chunk.ID] = chunk
		doc.ChunkIDs = append(doc.ChunkIDs, chunk.ID)
		if chunk.IsParent {
			if err := p.store.WriteParentText(chunk.ID, chunk.Text); err != nil {
				log.Printf("kb: %v", err)
			}
		}
	}

	p.ingestImages(ctx, work, doc, elements)

	// Evict records left behind by earlier versions of the same file:
	// a changed mtime mints a new docID and would otherwise orphan the
	// old document's chunks and images forever.
	p.removeSupersededDocuments(work, info.Name(), docID)

	work.Documents[docID] = doc
	return nil
}

// embedChildren batch-embeds child chunk text, respecting the provider
// batch limit. A failed batch degrades to zero vectors of the expected
// dimensionality for every item in that batch, keeping the index
// complete at the cost of semantically-null vectors.
func (p *Pipeline) embedChildren(ctx context.Context, chunks []*Chunk, work *Index) {
	var children []*Chunk
	for _, chunk := range chunks {
		if !chunk.IsParent {
			children = append(children, chunk)
		}
	}

	for start := 0; start < len(children); start += p.batchSize {
		end := start + p.batchSize
		if end > len(children) {
			end = len(children)
		}
		batch := children[start:end]
		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil || len(vectors) != len(batch) {
			log.Printf("kb: embedding batch failed, substituting zero vectors: %v", err)
			vectors = make([][]float32, len(batch))
			for i := range vectors {
				vectors[i] = make([]float32, p.embedder.Dimensions())
			}
		}
		for i, chunk := range batch {
			chunk.Embedding = vectors[i]
			work.Embeddings[chunk.ID] = vectors[i]
		}
	}
}

// ingestImages decodes and persists image payloads, embeds captions
// (empty caption means empty embedding, not an error) and records Image
// entries on the document.
func (p *Pipeline) ingestImages(ctx context.Context, work *Index, doc *Document, elements []ContentElement) {
	n := 0
	for _, el := range elements {
		if el.Kind != ElementImage && el.Kind != ElementChart {
			continue
		}
		if len(el.Data) == 0 {
			continue
		}

		imageID := fmt.Sprintf("%s_img%03d", doc.ID, n)
		n++

		blobPath, err := p.store.WriteImageBlob(imageID, el.Data)
		if err != nil {
			log.Printf("kb: %v", err)
			continue
		}

		caption := strings.TrimSpace(el.Text)
		var embedding []float32
		if caption != "" {
			embedding, err = p.embedder.Embed(ctx, caption)
			if err != nil {
				log.Printf("kb: embed caption for %s failed, substituting zero vector: %v", imageID, err)
				embedding = make([]float32, p.embedder.Dimensions())
			}
		}

		work.Images[imageID] = &Image{
			ID:        imageID,
			DocID:     doc.ID,
			Filename:  doc.Filename,
			Caption:   caption,
			Embedding: embedding,
			Page:      el.Page,
			BlobPath:  blobPath,
			IsChart:   p.isChart(ctx, el, caption),
		}
		doc.ImageIDs = append(doc.ImageIDs, imageID)
	}
}

// isChart resolves chart-ness from the element kind, then unambiguous
// caption keywords, then the optional classifier. Classifier failure
// means not a chart.
func (p *Pipeline) isChart(ctx context.Context, el ContentElement, caption string) bool {
	if el.Kind == ElementChart {
		return true
	}
	if captionSuggestsChart(caption) {
		return true
	}
	if p.classifier == nil {
		return false
	}
	isChart, err := p.classifier.IsChart(ctx, el.Data, caption)
	if err != nil {
		log.Printf("kb: chart classification failed: %v", err)
		return false
	}
	return isChart
}

func captionSuggestsChart(caption string) bool {
	lower := strings.ToLower(caption)
	for _, kw := range chartCaptionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// removeDocument drops a document and everything it owns from the
// working index, including on-disk blobs.
func (p *Pipeline) removeDocument(work *Index, docID string) {
	doc, ok := work.Documents[docID]
	if !ok {
		return
	}
	for _, chunkID := range doc.ChunkIDs {
		if chunk, ok := work.Chunks[chunkID]; ok && chunk.IsParent {
			p.store.RemoveParentText(chunkID)
		}
		delete(work.Chunks, chunkID)
		delete(work.Embeddings, chunkID)
	}
	for _, imageID := range doc.ImageIDs {
		delete(work.Images, imageID)
		p.store.RemoveImageBlob(imageID)
	}
	delete(work.Documents, docID)
}

// removeSupersededDocuments garbage-collects older ingestions of the
// same filename whose fingerprint no longer matches.
func (p *Pipeline) removeSupersededDocuments(work *Index, filename, keepDocID string) {
	for docID, doc := range work.Documents {
		if docID != keepDocID && doc.Filename == filename {
			p.removeDocument(work, docID)
		}
	}
}
