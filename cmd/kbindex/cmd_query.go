package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/DreamCats/kbindex/internal/config"
	"github.com/DreamCats/kbindex/internal/embedding"
	"github.com/DreamCats/kbindex/internal/kb"
	"github.com/DreamCats/kbindex/internal/llm"
)

// handleQuery implements the query subcommand
func handleQuery(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)

	var topK int
	var noImages, noExpand, jsonOutput bool

	fs.IntVar(&topK, "k", cfg.Retrieval.TopK, "Number of contexts to return")
	fs.BoolVar(&noImages, "no-images", false, "Skip image search")
	fs.BoolVar(&noExpand, "no-expand", false, "Skip LLM query expansion")
	fs.BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    kbindex query [options] "<question>"

DESCRIPTION:
    Query the knowledge base with natural language.
    Combines lexical and vector search, fuses rankings, and
    returns full parent contexts with source citations.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Ask a question
    kbindex query "What is the water cooling temperature?"

    # More contexts
    kbindex query "extrusion parameters" -k 5

    # JSON output for scripting
    kbindex query "material specs" -json
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: query is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	query := fs.Arg(0)

	store, err := kb.NewStore(cfg.Store.Dir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	embedder, err := embedding.NewService(&cfg.Embedding)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}

	var expander kb.Expander
	if !noExpand {
		chat, err := llm.NewOpenAIClient(&cfg.LLM)
		if err != nil {
			log.Printf("Warning: query expansion disabled: %v", err)
		} else {
			expander = chat
		}
	}

	retriever := kb.NewRetriever(store, embedder, expander, cfg.Retrieval.RRFK)

	stop := kb.StartSpinner(kb.DefaultProgressEnabled() && !jsonOutput, "searching")
	result, err := retriever.Retrieve(context.Background(), query, kb.RetrieveOptions{
		TopK:          topK,
		IncludeImages: !noImages,
	})
	stop()
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Println(result.Text)
	if len(result.Sources) > 0 {
		fmt.Printf("\n📚 Sources: %s\n", strings.Join(result.Sources, "; "))
	}
	if len(result.Images) > 0 {
		fmt.Println("\n🖼️  Images:")
		for _, path := range result.Images {
			fmt.Printf("   %s\n", path)
		}
	}
	fmt.Printf("\nConfidence: %.4f\n", result.Confidence)
}
