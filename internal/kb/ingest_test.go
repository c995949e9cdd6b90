package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeExtractor reads files as plain text unless an override or failure
// is configured for the basename.
type fakeExtractor struct {
	overrides map[string][]ContentElement
	failOn    map[string]bool
}

func (e *fakeExtractor) Extract(ctx context.Context, path string) ([]ContentElement, ExtractSummary, error) {
	base := filepath.Base(path)
	if e.failOn[base] {
		return nil, ExtractSummary{}, fmt.Errorf("extraction failed for %s", base)
	}
	if elements, ok := e.overrides[base]; ok {
		summary := ExtractSummary{}
		for _, el := range elements {
			switch el.Kind {
			case ElementText:
				summary.HasText = true
			case ElementTable:
				summary.HasTables = true
			case ElementImage:
				summary.HasImages = true
			case ElementChart:
				summary.HasCharts = true
			}
		}
		return elements, summary, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ExtractSummary{}, err
	}
	return []ContentElement{{Kind: ElementText, Text: string(data)}},
		ExtractSummary{HasText: true}, nil
}

// wordHashEmbedder is a deterministic bag-of-words embedder: each word
// bumps one dimension chosen by hash. Texts sharing words get similar
// vectors, so dense search agrees with lexical intuition in tests.
type wordHashEmbedder struct {
	dims int
	fail bool
}

func (e *wordHashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, fmt.Errorf("embedding service unavailable")
	}
	vec := make([]float32, e.dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,;:!?")))
		vec[int(h.Sum32())%e.dims]++
	}
	return vec, nil
}

func (e *wordHashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, fmt.Errorf("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, _ := e.Embed(ctx, text)
		out[i] = vec
	}
	return out, nil
}

func (e *wordHashEmbedder) Dimensions() int {
	return e.dims
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestPipeline(t *testing.T, extractor Extractor, embedder Embedder, cfg PipelineConfig) (*Pipeline, *Store) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	if extractor == nil {
		extractor = &fakeExtractor{}
	}
	if embedder == nil {
		embedder = &wordHashEmbedder{dims: 32}
	}
	return NewPipeline(store, extractor, embedder, cfg), store
}

func TestIngestSingleFile(t *testing.T) {
	dataDir := t.TempDir()
	path := writeTestFile(t, dataDir, "manual.txt",
		"Water cooling temperature must be 40 degrees Celsius for extrusion.")

	pipeline, store := newTestPipeline(t, nil, nil, PipelineConfig{})
	if err := pipeline.Ingest(context.Background(), path, false); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	snapshot := store.Snapshot()
	if len(snapshot.Documents) != 1 {
		t.Fatalf("expected 1 document, got %d", len(snapshot.Documents))
	}

	var doc *Document
	for _, d := range snapshot.Documents {
		doc = d
	}
	if doc.Filename != "manual.txt" {
		t.Errorf("unexpected filename: %s", doc.Filename)
	}
	if !doc.HasText {
		t.Error("expected HasText")
	}
	if len(doc.ChunkIDs) == 0 {
		t.Fatal("expected chunks")
	}

	var parents, children int
	for _, chunkID := range doc.ChunkIDs {
		chunk := snapshot.Chunks[chunkID]
		if chunk == nil {
			t.Fatalf("chunk %s missing from index", chunkID)
		}
		if chunk.IsParent {
			parents++
			// Parent text is persisted as a blob.
			text, err := store.ReadParentText(chunkID)
			if err != nil {
				t.Errorf("parent blob missing for %s: %v", chunkID, err)
			} else if !strings.Contains(text, "40 degrees") {
				t.Errorf("parent blob content wrong: %q", text)
			}
			if _, ok := snapshot.Embeddings[chunkID]; ok {
				t.Errorf("parent %s must not be embedded", chunkID)
			}
		} else {
			children++
			if _, ok := snapshot.Embeddings[chunkID]; !ok {
				t.Errorf("child %s has no embedding", chunkID)
			}
		}
	}
	if parents == 0 || children == 0 {
		t.Errorf("expected both parents and children, got %d/%d", parents, children)
	}

	if err := snapshot.Validate(); err != nil {
		t.Errorf("ingested index violates invariants: %v", err)
	}
}

func TestIngestSkipsUnchanged(t *testing.T) {
	dataDir := t.TempDir()
	path := writeTestFile(t, dataDir, "manual.txt", "stable content")

	pipeline, store := newTestPipeline(t, nil, nil, PipelineConfig{})
	if err := pipeline.Ingest(context.Background(), path, false); err != nil {
		t.Fatalf("first Ingest() error: %v", err)
	}

	before, err := json.Marshal(store.Snapshot())
	if err != nil {
		t.Fatal(err)
	}

	if err := pipeline.Ingest(context.Background(), path, false); err != nil {
		t.Fatalf("second Ingest() error: %v", err)
	}

	after, err := json.Marshal(store.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("re-ingesting an unchanged file must leave the index identical")
	}
}

func TestIngestForceReprocesses(t *testing.T) {
	dataDir := t.TempDir()
	path := writeTestFile(t, dataDir, "manual.txt", "stable content")

	pipeline, store := newTestPipeline(t, nil, nil, PipelineConfig{})
	if err := pipeline.Ingest(context.Background(), path, false); err != nil {
		t.Fatalf("first Ingest() error: %v", err)
	}

	var first time.Time
	for _, doc := range store.Snapshot().Documents {
		first = doc.ProcessedAt
	}

	if err := pipeline.Ingest(context.Background(), path, true); err != nil {
		t.Fatalf("forced Ingest() error: %v", err)
	}

	snapshot := store.Snapshot()
	if len(snapshot.Documents) != 1 {
		t.Fatalf("expected 1 document after force, got %d", len(snapshot.Documents))
	}
	for _, doc := range snapshot.Documents {
		if doc.ProcessedAt.Before(first) {
			t.Error("forced ingest must re-process the document")
		}
	}
}

func TestIngestSupersedesOldVersion(t *testing.T) {
	dataDir := t.TempDir()
	path := writeTestFile(t, dataDir, "manual.txt", "version one")

	pipeline, store := newTestPipeline(t, nil, nil, PipelineConfig{})
	if err := pipeline.Ingest(context.Background(), path, false); err != nil {
		t.Fatalf("first Ingest() error: %v", err)
	}

	var oldID string
	for id := range store.Snapshot().Documents {
		oldID = id
	}

	// A touched file mints a new fingerprint; the old record must go.
	if err := os.WriteFile(path, []byte("version two"), 0644); err != nil {
		t.Fatal(err)
	}
	newTime := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, newTime, newTime); err != nil {
		t.Fatal(err)
	}

	if err := pipeline.Ingest(context.Background(), path, false); err != nil {
		t.Fatalf("second Ingest() error: %v", err)
	}

	snapshot := store.Snapshot()
	if len(snapshot.Documents) != 1 {
		t.Fatalf("expected exactly 1 document after update, got %d", len(snapshot.Documents))
	}
	if _, ok := snapshot.Documents[oldID]; ok {
		t.Error("superseded document record must be removed")
	}
	for _, chunk := range snapshot.Chunks {
		if chunk.DocID == oldID {
			t.Errorf("orphaned chunk %s from superseded document", chunk.ID)
		}
	}
}

func TestIngestAllContinuesOnFailure(t *testing.T) {
	dataDir := t.TempDir()
	writeTestFile(t, dataDir, "good1.txt", "first document content")
	writeTestFile(t, dataDir, "bad.txt", "will not parse")
	writeTestFile(t, dataDir, "good2.txt", "second document content")

	extractor := &fakeExtractor{failOn: map[string]bool{"bad.txt": true}}
	pipeline, store := newTestPipeline(t, extractor, nil, PipelineConfig{})

	processed, err := pipeline.IngestAll(context.Background(), dataDir, false)
	if err != nil {
		t.Fatalf("IngestAll() error: %v", err)
	}
	if processed != 2 {
		t.Errorf("expected 2 processed files, got %d", processed)
	}
	if got := len(store.Snapshot().Documents); got != 2 {
		t.Errorf("expected 2 documents, got %d", got)
	}
}

func TestIngestEmbedderFailureDegradesToZeroVectors(t *testing.T) {
	dataDir := t.TempDir()
	writeTestFile(t, dataDir, "one.txt", "first content that cannot be embedded")
	writeTestFile(t, dataDir, "two.txt", "second content that cannot be embedded")
	writeTestFile(t, dataDir, "three.txt", "third content that cannot be embedded")

	embedder := &wordHashEmbedder{dims: 8, fail: true}
	pipeline, store := newTestPipeline(t, nil, embedder, PipelineConfig{})

	processed, err := pipeline.IngestAll(context.Background(), dataDir, false)
	if err != nil {
		t.Fatalf("IngestAll() must not fail on embedding errors: %v", err)
	}
	if processed != 3 {
		t.Errorf("expected 3 processed files, got %d", processed)
	}

	snapshot := store.Snapshot()
	if len(snapshot.Documents) != 3 {
		t.Fatalf("expected 3 documents despite embedding failure, got %d", len(snapshot.Documents))
	}
	if len(snapshot.Embeddings) == 0 {
		t.Fatal("expected zero-vector embeddings for children")
	}
	for id, vec := range snapshot.Embeddings {
		if len(vec) != 8 {
			t.Errorf("embedding %s: expected dims 8, got %d", id, len(vec))
		}
		for _, v := range vec {
			if v != 0 {
				t.Errorf("embedding %s: expected zero vector, got %v", id, vec)
				break
			}
		}
	}
}

func TestIngestImages(t *testing.T) {
	dataDir := t.TempDir()
	path := writeTestFile(t, dataDir, "report.pdf", "placeholder")

	extractor := &fakeExtractor{overrides: map[string][]ContentElement{
		"report.pdf": {
			{Kind: ElementText, Text: "body text about production metrics", Page: 1},
			{Kind: ElementImage, Text: "Figure 3: output graph by month", Page: 2, Data: []byte{1, 2, 3}},
			{Kind: ElementImage, Text: "", Page: 3, Data: []byte{4, 5, 6}},
			{Kind: ElementImage, Text: "no payload", Page: 4},
		},
	}}
	pipeline, store := newTestPipeline(t, extractor, nil, PipelineConfig{})

	if err := pipeline.Ingest(context.Background(), path, false); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	snapshot := store.Snapshot()
	if len(snapshot.Images) != 2 {
		t.Fatalf("expected 2 images (payload-less skipped), got %d", len(snapshot.Images))
	}

	var withCaption, withoutCaption *Image
	for _, img := range snapshot.Images {
		if img.Caption != "" {
			withCaption = img
		} else {
			withoutCaption = img
		}
	}
	if withCaption == nil || withoutCaption == nil {
		t.Fatal("expected one captioned and one caption-less image")
	}

	if !withCaption.IsChart {
		t.Error("caption with 'graph' keyword must mark the image as chart")
	}
	if len(withCaption.Embedding) == 0 {
		t.Error("captioned image must have a caption embedding")
	}
	if len(withoutCaption.Embedding) != 0 {
		t.Error("caption-less image must have no embedding")
	}
	if withoutCaption.IsChart {
		t.Error("caption-less image without classifier must not be a chart")
	}

	for _, img := range snapshot.Images {
		if _, err := os.Stat(img.BlobPath); err != nil {
			t.Errorf("image blob %s not written: %v", img.BlobPath, err)
		}
	}
}

func TestIngestAllRespectsExcludes(t *testing.T) {
	dataDir := t.TempDir()
	writeTestFile(t, dataDir, "keep.txt", "kept content")
	writeTestFile(t, dataDir, "skip.tmp", "temp content")
	writeTestFile(t, dataDir, ".hidden", "dotfile content")

	pipeline, store := newTestPipeline(t, nil, nil, PipelineConfig{Exclude: []string{"**/*.tmp"}})

	if _, err := pipeline.IngestAll(context.Background(), dataDir, false); err != nil {
		t.Fatalf("IngestAll() error: %v", err)
	}

	snapshot := store.Snapshot()
	if len(snapshot.Documents) != 1 {
		t.Fatalf("expected only keep.txt ingested, got %d documents", len(snapshot.Documents))
	}
	for _, doc := range snapshot.Documents {
		if doc.Filename != "keep.txt" {
			t.Errorf("unexpected document: %s", doc.Filename)
		}
	}
}
