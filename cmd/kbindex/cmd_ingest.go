package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/DreamCats/kbindex/internal/config"
	"github.com/DreamCats/kbindex/internal/embedding"
	"github.com/DreamCats/kbindex/internal/extract"
	"github.com/DreamCats/kbindex/internal/kb"
	"github.com/DreamCats/kbindex/internal/llm"
)

// handleIngest implements the ingest subcommand
func handleIngest(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	force := fs.Bool("force", false, "Re-ingest documents even if already indexed")
	dataDir := fs.String("data", "", "Override data directory")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    kbindex ingest [options] [file]

DESCRIPTION:
    Ingest documents into the knowledge base.
    This will:
      1. Extract text content (page by page for PDFs)
      2. Split into parent and child chunks
      3. Embed child chunks for vector search
      4. Build the lexical index
      5. Persist the updated index atomically

    With no file argument, every eligible file under the data
    directory is ingested. Unchanged files are skipped.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Ingest the configured data directory
    kbindex ingest

    # Ingest a single document
    kbindex ingest ./docs/manual.pdf

    # Re-ingest everything
    kbindex ingest -force
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	dir := cfg.Data.Dir
	if *dataDir != "" {
		dir = *dataDir
	}

	store, err := kb.NewStore(cfg.Store.Dir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	embedder, err := embedding.NewService(&cfg.Embedding)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}

	var classifier kb.Classifier
	if cfg.LLM.ClassifyCharts {
		chat, err := llm.NewOpenAIClient(&cfg.LLM)
		if err != nil {
			log.Printf("Warning: chart classification disabled: %v", err)
		} else {
			classifier = chat
		}
	}

	pipeline := kb.NewPipeline(store, extract.NewFallback(), embedder, kb.PipelineConfig{
		BatchSize:  cfg.Embedding.BatchSize,
		Chunker:    kb.NewChunker(cfg.Chunking.ParentTokens, cfg.Chunking.ChildTokens, cfg.Chunking.OverlapTokens),
		Classifier: classifier,
		Progress:   kb.NewIngestProgress(kb.DefaultProgressEnabled()),
		Exclude:    cfg.Data.Exclude,
	})

	ctx := context.Background()
	startTime := time.Now()

	if fs.NArg() > 0 {
		path := fs.Arg(0)
		fmt.Printf("📥 Ingesting: %s\n\n", path)
		if err := pipeline.Ingest(ctx, path, *force); err != nil {
			log.Fatalf("Ingest failed: %v", err)
		}
	} else {
		fmt.Printf("📥 Ingesting documents from: %s\n\n", dir)
		processed, err := pipeline.IngestAll(ctx, dir, *force)
		if err != nil {
			log.Fatalf("Ingest failed: %v", err)
		}
		fmt.Printf("Processed %d file(s)\n", processed)
	}

	duration := time.Since(startTime)
	stats := store.Stats()

	fmt.Println()
	fmt.Println("✅ Ingestion completed successfully!")
	fmt.Printf("\n⏱️  Duration: %v\n", duration)
	fmt.Println("\n📊 Statistics:")
	fmt.Printf("   Documents: %6d\n", stats.Documents)
	fmt.Printf("   Chunks:    %6d\n", stats.Chunks)
	fmt.Printf("   Images:    %6d\n", stats.Images)
}
