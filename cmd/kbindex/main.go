package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/DreamCats/kbindex/cmd/kbindex/internal"
	"github.com/DreamCats/kbindex/internal/config"
)

// main 启动 kbindex 命令行工具，解析参数并执行对应子命令。
// 若参数无效或缺少子命令则打印用法并退出。
func main() {
	// .env is optional; the OPENAI_API_KEY fallback reads from it.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		internal.PrintUsage()
		os.Exit(1)
	}

	configPath := ""
	args := os.Args[1:]

	// Handle special flags that don't require subcommand
	for _, arg := range args {
		if arg == "-h" || arg == "-help" || arg == "--help" {
			internal.PrintUsage()
			os.Exit(0)
		}
		if arg == "-v" || arg == "-version" || arg == "--version" {
			fmt.Printf("kbindex version %s\n", internal.Version)
			os.Exit(0)
		}
	}

	validSubcommands := map[string]bool{
		"ingest": true,
		"query":  true,
		"stats":  true,
	}

	subcommandIndex := -1
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") && validSubcommands[arg] {
			subcommandIndex = i
			break
		}
	}

	if subcommandIndex == -1 {
		fmt.Fprintf(os.Stderr, "Error: No subcommand specified\n\n")
		internal.PrintUsage()
		os.Exit(1)
	}

	// Parse global flags (before subcommand)
	globalFlags := args[:subcommandIndex]
	for i := 0; i < len(globalFlags); i++ {
		flag := globalFlags[i]
		if flag == "-config" || flag == "--config" {
			if i+1 < len(globalFlags) {
				configPath = globalFlags[i+1]
				i++
			}
		} else if strings.HasPrefix(flag, "-") {
			fmt.Fprintf(os.Stderr, "Error: Unknown global flag: %s\n\n", flag)
			internal.PrintUsage()
			os.Exit(1)
		}
	}

	subcommand := args[subcommandIndex]
	subcommandArgs := args[subcommandIndex+1:]

	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		if config.IsConfigNotFound(err) {
			if subcommand == "ingest" {
				if notFoundErr, ok := err.(*config.ConfigNotFoundError); ok {
					created, createErr := config.WriteDefaultTemplate(notFoundErr.RequestedPath)
					if createErr != nil {
						fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
						fmt.Fprintf(os.Stderr, "Also failed to create default config at %s: %v\n\n", notFoundErr.RequestedPath, createErr)
						internal.PrintConfigExample()
						os.Exit(1)
					}
					if created {
						fmt.Fprintf(os.Stderr, "Created default config at %s\n", notFoundErr.RequestedPath)
					}
					fmt.Fprintln(os.Stderr, "Please review the config file (and set OPENAI_API_KEY) and rerun `kbindex ingest`.")
					os.Exit(1)
				}
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			internal.PrintConfigExample()
			os.Exit(1)
		}
		log.Fatalf("Failed to load config: %v\n", err)
	}

	if err := internal.SetupLogging(subcommand); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize log file: %v\n", err)
	}

	switch subcommand {
	case "ingest":
		handleIngest(cfg, subcommandArgs)
	case "query":
		handleQuery(cfg, subcommandArgs)
	case "stats":
		handleStats(cfg, subcommandArgs)
	default:
		fmt.Printf("Unknown subcommand: %s\n\n", subcommand)
		internal.PrintUsage()
		os.Exit(1)
	}
}
