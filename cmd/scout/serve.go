package main

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mediadesk/scout/internal/config"
	"github.com/mediadesk/scout/internal/domain"
	scoutmcp "github.com/mediadesk/scout/internal/mcp"
)

// runServe starts the MCP server on stdio. Logs already go to stderr, so
// the protocol stream on stdout stays clean.
func runServe(args []string) error {
	var configPath, dbPath, llmFlag string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 >= len(args) {
				return fmt.Errorf("--config requires a value")
			}
			i++
			configPath = args[i]
		case "--db":
			if i+1 >= len(args) {
				return fmt.Errorf("--db requires a value")
			}
			i++
			dbPath = args[i]
		case "--llm":
			if i+1 >= len(args) {
				return fmt.Errorf("--llm requires a value")
			}
			i++
			llmFlag = args[i]
		default:
			if strings.HasPrefix(args[i], "-") {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
	}

	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath: configPath,
		CLIDBPath:  dbPath,
		CLILLM:     llmFlag,
	})
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}

	opts := domain.DefaultOptions()
	extractor, extractionCache, st, err := buildExtractor(cfg, opts)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	if extractionCache != nil {
		defer extractionCache.Destroy()
	}

	srv := scoutmcp.NewServer(scoutmcp.ServerConfig{
		Extractor: extractor,
		Store:     st,
		Version:   version,
	})
	return server.ServeStdio(srv)
}
