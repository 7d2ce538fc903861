package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mediadesk/scout/internal/cache"
	"github.com/mediadesk/scout/internal/config"
	"github.com/mediadesk/scout/internal/content"
	"github.com/mediadesk/scout/internal/domain"
	"github.com/mediadesk/scout/internal/identify"
	"github.com/mediadesk/scout/internal/llm"
	"github.com/mediadesk/scout/internal/pipeline"
	"github.com/mediadesk/scout/internal/store"
	"github.com/mediadesk/scout/internal/validate"
)

type extractFlags struct {
	urls       []string
	threshold  string
	strict     bool
	noAI       bool
	noCache    bool
	maxPer     int
	llmFlag    string
	configPath string
	dbPath     string
	cacheFile  string
	asJSON     bool
}

func runExtract(args []string) error {
	flags, err := parseExtractFlags(args)
	if err != nil {
		return err
	}
	if len(flags.urls) == 0 {
		return fmt.Errorf("usage: scout extract <url>... [--threshold 0.3] [--strict] [--no-ai]")
	}

	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:   flags.configPath,
		CLILLM:       flags.llmFlag,
		CLIDBPath:    flags.dbPath,
		CLIThreshold: flags.threshold,
		CLICacheFile: flags.cacheFile,
	})
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}

	opts := domain.DefaultOptions()
	opts.ConfidenceThreshold = cfg.ThresholdOrDefault(0.3)
	opts.StrictValidation = flags.strict
	if flags.noAI {
		opts.EnableAI = false
	}
	if flags.noCache {
		opts.EnableCaching = false
	}
	if flags.maxPer > 0 {
		opts.MaxContactsPerSource = flags.maxPer
	} else {
		opts.MaxContactsPerSource = config.IntOrDefault(cfg.MaxContacts, opts.MaxContactsPerSource)
	}

	extractor, extractionCache, st, err := buildExtractor(cfg, opts)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	if extractionCache != nil {
		defer extractionCache.Destroy()
		if cfg.CacheFile.Value != "" {
			warmCache(extractionCache, cfg.CacheFile.Value)
			defer saveCache(extractionCache, cfg.CacheFile.Value)
		}
	}

	sources := make([]domain.Source, 0, len(flags.urls))
	for _, u := range flags.urls {
		if !content.IsValidURL(u) {
			return fmt.Errorf("invalid URL: %s", u)
		}
		sources = append(sources, domain.Source{URL: u, Type: domain.SourceTypeOther})
	}

	result, err := extractor.Run(context.Background(), domain.ExtractionRequest{
		Sources: sources,
		Options: opts,
	})
	if err != nil {
		return err
	}

	if flags.asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printResult(result)
	return nil
}

func parseExtractFlags(args []string) (extractFlags, error) {
	flags := extractFlags{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}
		var err error
		switch {
		case arg == "--strict":
			flags.strict = true
		case arg == "--no-ai":
			flags.noAI = true
		case arg == "--no-cache":
			flags.noCache = true
		case arg == "--json":
			flags.asJSON = true
		case arg == "--threshold":
			flags.threshold, err = next()
		case arg == "--max":
			var v string
			if v, err = next(); err == nil {
				flags.maxPer, err = strconv.Atoi(v)
				if err != nil || flags.maxPer <= 0 {
					err = fmt.Errorf("--max expects a positive integer, got %q", v)
				}
			}
		case arg == "--llm":
			flags.llmFlag, err = next()
		case arg == "--config":
			flags.configPath, err = next()
		case arg == "--db":
			flags.dbPath, err = next()
		case arg == "--cache-file":
			flags.cacheFile, err = next()
		case strings.HasPrefix(arg, "-"):
			err = fmt.Errorf("unknown flag: %s", arg)
		default:
			flags.urls = append(flags.urls, arg)
		}
		if err != nil {
			return flags, err
		}
	}
	return flags, nil
}

// buildExtractor wires the full pipeline from resolved config.
func buildExtractor(cfg config.ResolvedConfig, opts domain.ExtractionOptions) (*pipeline.Extractor, *cache.Cache, store.Store, error) {
	var provider llm.Provider
	if opts.EnableAI {
		llmCfg, err := llm.ParseFlag(cfg.LLMProvider.Value)
		if err != nil {
			return nil, nil, nil, err
		}
		if key := cfg.APIKeyForProvider(cfg.LLMProvider.Value); key.Value != "" {
			llmCfg.APIKey = key.Value
		}
		client, err := llm.NewClient(llmCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("configuring LLM (%s from %s): %w",
				cfg.LLMProvider.Value, cfg.LLMProvider.Source, err)
		}
		provider = client
	}

	st, err := store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}

	var extractionCache *cache.Cache
	if opts.EnableCaching {
		extractionCache = cache.New(cache.Config{
			TTL:     cacheTTL(cfg.CacheTTL.Value),
			MaxSize: config.IntOrDefault(cfg.CacheMaxSize, 1000),
		})
	}

	parser := content.NewParser(content.ParserConfig{
		RateLimit: rate.Limit(config.IntOrDefault(cfg.FetchRateLimit, 4)),
	})
	validator := validate.NewEmailValidator(validate.NetResolver{}, nil)

	var identifier *identify.Identifier
	if provider != nil {
		identifier = identify.New(provider, slog.Default())
	}

	extractor := pipeline.New(pipeline.Config{
		Parser:     parser,
		Identifier: identifier,
		Validator:  validator,
		Cache:      extractionCache,
		Store:      st,
	})
	return extractor, extractionCache, st, nil
}

// cacheTTL accepts a duration string ("30m") or bare seconds ("1800").
func cacheTTL(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func warmCache(c *cache.Cache, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cache warm-start failed", "path", path, "err", err)
		}
		return
	}
	loaded, err := c.Import(data)
	if err != nil {
		slog.Warn("cache import failed", "path", path, "err", err)
		return
	}
	slog.Info("cache warmed", "path", path, "entries", loaded)
}

func saveCache(c *cache.Cache, path string) {
	data, err := c.Export()
	if err != nil {
		slog.Warn("cache export failed", "err", err)
		return
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		slog.Warn("cache save failed", "path", path, "err", err)
	}
}

func printResult(result *domain.Result) {
	fmt.Printf("Job %s: %s\n", result.JobID, result.Status)
	fmt.Printf("Sources processed: %d\n", result.SourcesProcessed)
	fmt.Printf("Contacts: %d found, %d imported (avg confidence %.2f, avg quality %.2f)\n",
		result.ContactsFound, result.ContactsImported, result.AvgConfidence, result.AvgQuality)
	if len(result.DuplicateGroups) > 0 {
		fmt.Printf("Duplicate groups: %d\n", len(result.DuplicateGroups))
	}
	fmt.Printf("Elapsed: %s\n", result.Elapsed.Round(time.Millisecond))
	fmt.Println()

	for _, c := range result.Contacts {
		marker := " "
		if c.IsDuplicate {
			marker = "D"
		}
		fmt.Printf("%s %-28s", marker, c.Name)
		if c.Title != "" {
			fmt.Printf("  %s", c.Title)
		}
		fmt.Println()
		if c.Email != "" {
			fmt.Printf("    %s (%s, %s)\n", c.Email, c.EmailType, c.EmailValidationStatus)
		}
		for _, p := range c.SocialProfiles {
			fmt.Printf("    %s: @%s\n", p.Platform, p.Handle)
		}
		fmt.Printf("    confidence %.2f | quality %.2f | relevance %.2f | %s\n",
			c.ConfidenceScore, c.QualityScore, c.RelevanceScore, c.SourceURL)
	}

	if len(result.Errors) > 0 {
		fmt.Println("\nWarnings:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}
