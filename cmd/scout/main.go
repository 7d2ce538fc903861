package main

import (
	"fmt"
	"log/slog"
	"os"
)

const version = "0.1.0"

func main() {
	setupLogging()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "extract":
		if err := runExtract(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "stats":
		if err := runStats(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Printf("scout %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// setupLogging sends structured logs to stderr so stdout stays clean for
// command output and the MCP stdio transport.
func setupLogging() {
	level := slog.LevelInfo
	switch os.Getenv("SCOUT_LOG") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func printUsage() {
	fmt.Printf(`scout %s - Contact extraction pipeline for media outreach

Usage:
  scout <command> [arguments]

Commands:
  extract <url>...    Extract contacts from one or more web pages
  stats               Show store statistics and resolved configuration
  serve               Run the MCP server on stdio
  version             Print version

Extract Flags:
  --threshold <f>     Minimum confidence to keep a contact (default: 0.3)
  --strict            Strict validation (require email or title, drop disposable)
  --no-ai             Skip AI identification, use rule-based extraction
  --no-cache          Bypass the extraction cache
  --max <n>           Max contacts per source (default: 20)
  --llm <p/m>         LLM as provider/model (e.g. openai/gpt-4o-mini)
  --cache-file <path> Warm the cache from, and save it back to, this file
  --json              Print the full result as JSON

Flags:
  --config <path>     Config file (default: ~/.scout/config.yaml)
  --db <path>         Database path (default: ~/.scout/scout.db)
  -h, --help          Show this help message
  -v, --version       Print version

Environment:
  SCOUT_LOG           Log level: debug, info, warn, error
  SCOUT_DB            Database path override
  SCOUT_LLM           LLM provider/model override
  OPENAI_API_KEY      API key for the openai provider
  OPENROUTER_API_KEY  API key for the openrouter provider

Documentation:
  https://github.com/mediadesk/scout
`, version)
}
