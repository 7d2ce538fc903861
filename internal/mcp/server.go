// Package mcp provides a Model Context Protocol server for Scout.
//
// It exposes contact extraction and store statistics as MCP tools, and
// recent extraction jobs as an MCP resource, over stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mediadesk/scout/internal/content"
	"github.com/mediadesk/scout/internal/domain"
	"github.com/mediadesk/scout/internal/pipeline"
	"github.com/mediadesk/scout/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Extractor *pipeline.Extractor
	Store     store.Store
	Version   string
}

// dbMu serializes MCP tool calls that touch the database. The mcp-go
// library dispatches handlers concurrently, and SQLite supports only one
// writer at a time; the mutex keeps extractions and stats reads ordered.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all Scout tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Scout",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerExtractTool(s, cfg.Extractor)
	registerStatsTool(s, cfg.Extractor)
	registerJobTool(s, cfg.Store)
	registerRecentResource(s, cfg.Store)

	return s
}

func registerExtractTool(s *server.MCPServer, extractor *pipeline.Extractor) {
	tool := mcp.NewTool("scout_extract",
		mcp.WithDescription("Extract journalist and expert contacts from one or more web page URLs. Parses content, identifies people with AI, validates emails, detects social profiles, scores and deduplicates the results."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("urls",
			mcp.Required(),
			mcp.Description("URLs to extract from, separated by whitespace or commas"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum confidence score to keep a contact (0.0-1.0, default: 0.3)"),
		),
		mcp.WithBoolean("strict",
			mcp.Description("Strict validation: require email or title, realistic names, and drop disposable addresses (default: false)"),
		),
		mcp.WithBoolean("no_ai",
			mcp.Description("Skip AI identification and use rule-based extraction only (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		rawURLs, err := req.RequireString("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required"), nil
		}
		urls := splitURLs(rawURLs)
		if len(urls) == 0 {
			return mcp.NewToolResultError("no valid URLs provided"), nil
		}

		opts := domain.DefaultOptions()
		if threshold, err := req.RequireFloat("threshold"); err == nil && threshold >= 0 && threshold <= 1 {
			opts.ConfidenceThreshold = threshold
		}
		if strict, err := req.RequireString("strict"); err == nil {
			opts.StrictValidation = strict == "true"
		}
		if noAI, err := req.RequireString("no_ai"); err == nil && noAI == "true" {
			opts.EnableAI = false
		}

		sources := make([]domain.Source, 0, len(urls))
		for _, u := range urls {
			sources = append(sources, domain.Source{URL: u, Type: domain.SourceTypeOther})
		}

		result, err := extractor.Run(ctx, domain.ExtractionRequest{
			Sources: sources,
			Options: opts,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extraction error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, extractor *pipeline.Extractor) {
	tool := mcp.NewTool("scout_stats",
		mcp.WithDescription("Show Scout store statistics: job and contact counts, duplicate totals, and average confidence and quality scores."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Description("Scope statistics to one user's jobs. Empty = global."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userID := ""
		if u, err := req.RequireString("user_id"); err == nil {
			userID = u
		}

		stats, err := extractor.Statistics(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerJobTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("scout_job",
		mcp.WithDescription("Fetch one extraction job by ID, including its contacts and duplicate groups."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The extraction job ID"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if st == nil {
			return mcp.NewToolResultError("no store configured"), nil
		}
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError("job_id is required"), nil
		}

		job, err := st.GetJob(ctx, jobID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("job lookup error: %v", err)), nil
		}
		contacts, err := st.ListContacts(ctx, jobID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("contact lookup error: %v", err)), nil
		}
		groups, err := st.ListDuplicateGroups(ctx, jobID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("group lookup error: %v", err)), nil
		}

		payload := map[string]any{
			"job":              job,
			"contacts":         contacts,
			"duplicate_groups": groups,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRecentResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"scout://jobs/recent",
		"Recent Extractions",
		mcp.WithResourceDescription("The most recent extraction jobs with status and contact counts."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if st == nil {
			return nil, fmt.Errorf("no store configured")
		}
		jobs, err := st.ListJobs(ctx, store.ListOpts{Limit: 20})
		if err != nil {
			return nil, fmt.Errorf("listing recent jobs: %w", err)
		}

		payload := map[string]any{
			"jobs":  jobs,
			"count": len(jobs),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

// splitURLs accepts whitespace- or comma-separated URLs and keeps only the
// ones that parse as http(s).
func splitURLs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if content.IsValidURL(f) {
			out = append(out, f)
		}
	}
	return out
}
