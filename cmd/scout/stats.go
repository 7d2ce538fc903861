package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mediadesk/scout/internal/config"
	"github.com/mediadesk/scout/internal/store"
)

// runStats prints store aggregates plus the resolved configuration with
// provenance, so misconfiguration is visible instead of silent.
func runStats(args []string) error {
	var configPath, dbPath, userID string
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
		case "--user":
			if i+1 >= len(args) {
				return fmt.Errorf("--user requires a value")
			}
			i++
			userID = args[i]
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
	})
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}

	st, err := store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	fmt.Println("Store:")
	fmt.Printf("  Jobs:             %d\n", stats.JobCount)
	fmt.Printf("  Contacts:         %d (%d duplicates)\n", stats.ContactCount, stats.DuplicateCount)
	fmt.Printf("  Duplicate groups: %d\n", stats.GroupCount)
	fmt.Printf("  Avg confidence:   %.2f\n", stats.AvgConfidence)
	fmt.Printf("  Avg quality:      %.2f\n", stats.AvgQuality)
	if stats.DBSizeBytes > 0 {
		fmt.Printf("  DB size:          %.1f KB\n", float64(stats.DBSizeBytes)/1024)
	}

	fmt.Println("\nConfiguration:")
	printValue("db_path", cfg.DBPath)
	printValue("llm_provider", cfg.LLMProvider)
	printValue("confidence_threshold", cfg.ConfidenceThreshold)
	printValue("max_contacts", cfg.MaxContacts)
	printValue("cache_ttl", cfg.CacheTTL)
	printValue("cache_max_size", cfg.CacheMaxSize)
	printValue("cache_file", cfg.CacheFile)
	return nil
}

func printValue(name string, rv config.ResolvedValue) {
	if rv.Value == "" {
		fmt.Printf("  %-22s (default)\n", name)
		return
	}
	from := ""
	if rv.From != "" {
		from = " via " + rv.From
	}
	fmt.Printf("  %-22s %s  [%s%s]\n", name, rv.Value, rv.Source, from)
}
