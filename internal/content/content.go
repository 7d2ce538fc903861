// Package content turns a URL into normalized text plus metadata.
//
// Fetching and parsing are the first pipeline stage: readability extracts the
// main body, goquery collects document metadata and link/image lists, and a
// short-lived page cache avoids re-fetching when multiple stages need the
// same page within one job. This cache is distinct from the extraction cache
// owned by the orchestrator.
package content

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"
)

// DefaultUserAgent identifies Scout to origin servers.
const DefaultUserAgent = "scout/1.0 (+https://github.com/mediadesk/scout)"

// maxBodyBytes caps response bodies to keep a hostile page from exhausting memory.
const maxBodyBytes = 8 << 20

// ParsedContent is the normalized representation of one fetched page.
type ParsedContent struct {
	URL         string     `json:"url"`
	Title       string     `json:"title,omitempty"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Text        string     `json:"text"`
	RawHTML     string     `json:"raw_html,omitempty"`
	Links       []string   `json:"links,omitempty"`
	Images      []string   `json:"images,omitempty"`
	Language    string     `json:"language,omitempty"`
	WordCount   int        `json:"word_count"`
	ReadingTime int        `json:"reading_time_minutes"`
}

// Options controls a single parse.
type Options struct {
	Timeout        time.Duration // per-fetch timeout (default: 30s)
	IncludeRawHTML bool          // keep the raw markup (entities decoded)
	MaxLinks       int           // cap on collected links (default: 100)
}

// ParseError reports a fetch or parse failure for one URL.
type ParseError struct {
	URL   string
	Stage string // "fetch", "status", "read", "parse"
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %s: %v", e.URL, e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// pageEntry is one short-lived page cache slot.
type pageEntry struct {
	content *ParsedContent
	expires time.Time
}

// Parser fetches and normalizes web pages.
type Parser struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu       sync.RWMutex
	pages    map[string]pageEntry
	pageTTL  time.Duration
	maxPages int
}

// ParserConfig configures a Parser. Zero values get defaults.
type ParserConfig struct {
	UserAgent string
	PageTTL   time.Duration // page cache lifetime (default: 5m)
	MaxPages  int           // page cache capacity (default: 64)
	RateLimit rate.Limit    // outbound fetches per second (default: 4)
	Logger    *slog.Logger
}

// NewParser creates a Parser with its own HTTP client and page cache.
func NewParser(cfg ParserConfig) *Parser {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.PageTTL <= 0 {
		cfg.PageTTL = 5 * time.Minute
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 64
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Parser{
		client:    &http.Client{},
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(cfg.RateLimit, int(cfg.RateLimit)+1),
		logger:    cfg.Logger,
		pages:     make(map[string]pageEntry),
		pageTTL:   cfg.PageTTL,
		maxPages:  cfg.MaxPages,
	}
}

// Parse fetches rawURL and returns its normalized content. All failures are
// reported as *ParseError so the orchestrator can recover at source level.
func (p *Parser) Parse(ctx context.Context, rawURL string, opts Options) (*ParsedContent, error) {
	if !IsValidURL(rawURL) {
		return nil, &ParseError{URL: rawURL, Stage: "fetch", Err: fmt.Errorf("invalid URL")}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = 100
	}

	if cached := p.cachedPage(rawURL); cached != nil {
		return cached, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &ParseError{URL: rawURL, Stage: "fetch", Err: err}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	body, err := p.fetch(fetchCtx, rawURL)
	if err != nil {
		return nil, err
	}

	parsed, err := p.parseHTML(rawURL, body, opts)
	if err != nil {
		return nil, err
	}

	p.storePage(rawURL, parsed)
	p.logger.Debug("parsed content",
		"url", rawURL, "words", parsed.WordCount, "language", parsed.Language)
	return parsed, nil
}

func (p *Parser) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &ParseError{URL: rawURL, Stage: "fetch", Err: err}
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &ParseError{URL: rawURL, Stage: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ParseError{URL: rawURL, Stage: "status", Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &ParseError{URL: rawURL, Stage: "read", Err: err}
	}
	return string(data), nil
}

func (p *Parser) parseHTML(rawURL, html string, opts Options) (*ParsedContent, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ParseError{URL: rawURL, Stage: "parse", Err: err}
	}

	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return nil, &ParseError{URL: rawURL, Stage: "parse", Err: err}
	}

	text := NormalizeWhitespace(article.TextContent)
	if text == "" {
		// Readability found no article body; fall back to stripped document text.
		if doc, derr := goquery.NewDocumentFromReader(strings.NewReader(html)); derr == nil {
			text = NormalizeWhitespace(doc.Find("body").Text())
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{URL: rawURL, Stage: "parse", Err: fmt.Errorf("no textual content")}
	}

	parsed := &ParsedContent{
		URL:       rawURL,
		Title:     strings.TrimSpace(article.Title),
		Author:    strings.TrimSpace(article.Byline),
		Text:      text,
		WordCount: len(strings.Fields(text)),
	}
	parsed.ReadingTime = (parsed.WordCount + 199) / 200
	parsed.Language = DetectLanguage(text)

	if doc, derr := goquery.NewDocumentFromReader(strings.NewReader(html)); derr == nil {
		fillMetadata(parsed, doc, pageURL, opts.MaxLinks)
	}

	if opts.IncludeRawHTML {
		parsed.RawHTML = DecodeEntities(html)
	}
	return parsed, nil
}

// fillMetadata reads meta tags, links, and images from the document.
func fillMetadata(pc *ParsedContent, doc *goquery.Document, base *url.URL, maxLinks int) {
	if pc.Title == "" {
		pc.Title = strings.TrimSpace(doc.Find("meta[property='og:title']").AttrOr("content", ""))
	}
	if pc.Title == "" {
		pc.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if pc.Author == "" {
		pc.Author = strings.TrimSpace(doc.Find("meta[name='author']").AttrOr("content", ""))
	}
	if pc.Author == "" {
		pc.Author = strings.TrimSpace(doc.Find("meta[property='article:author']").AttrOr("content", ""))
	}

	if raw := doc.Find("meta[property='article:published_time']").AttrOr("content", ""); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			pc.PublishedAt = &ts
		}
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		abs := resolveRef(base, href)
		if abs == "" {
			return true
		}
		if _, ok := seen[abs]; ok {
			return true
		}
		seen[abs] = struct{}{}
		pc.Links = append(pc.Links, abs)
		return len(pc.Links) < maxLinks
	})

	imgSeen := make(map[string]struct{})
	doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		abs := resolveRef(base, src)
		if abs == "" {
			return true
		}
		if _, ok := imgSeen[abs]; ok {
			return true
		}
		imgSeen[abs] = struct{}{}
		pc.Images = append(pc.Images, abs)
		return len(pc.Images) < maxLinks
	})
}

func resolveRef(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "data:") {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(parsed)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func (p *Parser) cachedPage(rawURL string) *ParsedContent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.pages[rawURL]
	if !ok || time.Now().After(entry.expires) {
		return nil
	}
	return entry.content
}

func (p *Parser) storePage(rawURL string, pc *ParsedContent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pages) >= p.maxPages {
		// Drop the entry closest to expiry; the page cache is tiny and
		// short-lived, precise LRU is not worth the bookkeeping here.
		var oldest string
		var oldestAt time.Time
		for k, v := range p.pages {
			if oldest == "" || v.expires.Before(oldestAt) {
				oldest, oldestAt = k, v.expires
			}
		}
		delete(p.pages, oldest)
	}
	p.pages[rawURL] = pageEntry{content: pc, expires: time.Now().Add(p.pageTTL)}
}

// MultiOptions configures ParseMultiple.
type MultiOptions struct {
	Options
	MaxConcurrent int // bounded fan-out (default: 3)
}

// MultiResult pairs one URL with its parse outcome. Per-URL errors land in
// Err rather than aborting the batch.
type MultiResult struct {
	URL     string
	Content *ParsedContent
	Err     error
}

// ParseMultiple fans out bounded-concurrency fetches and returns one result
// per URL, in input order.
func (p *Parser) ParseMultiple(ctx context.Context, urls []string, opts MultiOptions) []MultiResult {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}

	results := make([]MultiResult, len(urls))
	sem := make(chan struct{}, opts.MaxConcurrent)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, u string) {
			defer wg.Done()
			defer func() { <-sem }()
			pc, err := p.Parse(ctx, u, opts.Options)
			results[i] = MultiResult{URL: u, Content: pc, Err: err}
		}(i, u)
	}
	wg.Wait()
	return results
}
