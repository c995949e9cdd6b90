package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/DreamCats/kbindex/internal/config"
	"github.com/DreamCats/kbindex/internal/kb"
)

// handleStats implements the stats subcommand
func handleStats(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	var jsonOutput bool
	fs.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    kbindex stats [options]

DESCRIPTION:
    Show statistics about the knowledge base.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Show human-readable statistics
    kbindex stats

    # JSON output
    kbindex stats -json
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	store, err := kb.NewStore(cfg.Store.Dir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	stats := store.Stats()
	snapshot := store.Snapshot()

	if jsonOutput {
		out := map[string]interface{}{
			"documents": stats.Documents,
			"chunks":    stats.Chunks,
			"images":    stats.Images,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Println("📊 Knowledge Base Statistics")
	fmt.Println()
	fmt.Printf("Documents: %6d\n", stats.Documents)
	fmt.Printf("Chunks:    %6d\n", stats.Chunks)
	fmt.Printf("Images:    %6d\n", stats.Images)

	if stats.Documents == 0 {
		return
	}

	docs := make([]*kb.Document, 0, len(snapshot.Documents))
	for _, doc := range snapshot.Documents {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })

	fmt.Println("\n📄 Documents:")
	for _, doc := range docs {
		flags := ""
		if doc.HasTables {
			flags += " tables"
		}
		if doc.HasImages {
			flags += " images"
		}
		if doc.HasCharts {
			flags += " charts"
		}
		if flags == "" {
			flags = " text"
		}
		fmt.Printf("   %-40s %3d chunks %2d images |%s\n",
			doc.Filename, len(doc.ChunkIDs), len(doc.ImageIDs), flags)
	}
}
