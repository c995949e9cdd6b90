package internal

import (
	"fmt"
	"os"
)

const Version = "0.3.1"

// PrintUsage 向 stderr 输出 kbindex 的用法与可用子命令列表。
// 无返回值，直接退出程序。
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `kbindex - Local Knowledge Base with Hybrid Retrieval

Version: %s

USAGE:
    kbindex [global options] <command> [command options]

GLOBAL OPTIONS:
    -config <path>
        Path to config file (default: ~/.kbindex/config/kbindex.yaml)

    -v, -version
        Show version information

    -h, -help
        Show this help message

COMMANDS:
    ingest
        Ingest documents into the knowledge base

    query
        Ask a natural-language question against the knowledge base

    stats
        Show knowledge base statistics

EXAMPLES:
    # Ingest the configured data directory
    kbindex ingest

    # Ingest a single file
    kbindex ingest ./docs/manual.pdf

    # Ask a question
    kbindex query "What is the water cooling temperature?"

    # More contexts, no image search
    kbindex query "extrusion parameters" -k 5 -no-images

    # Show statistics
    kbindex stats

For detailed help on each command, use:
    kbindex <command> -help
`, Version)
}
